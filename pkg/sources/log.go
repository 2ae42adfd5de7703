package sources

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/HatiCode/corecast/pkg/scaling"
	"github.com/HatiCode/corecast/pkg/walltime"
)

var benchLine = regexp.MustCompile(`\bsize=(\S+)\s+wall=(\S+)`)

// LogSource reads benchmark logs where each measured run left a line like
//
//	size=10% wall=0:22:30
//
// anywhere in the line. Lines without a match are ignored, so whole job
// output files can be fed in directly.
type LogSource struct {
	// Path is the log file to read; "-" reads Reader (or stdin when Reader is nil).
	Path string

	// Reader is used instead of Path when set.
	Reader io.Reader
}

func (l *LogSource) Name() string { return "log" }

// Collect implements Source.
func (l *LogSource) Collect(ctx context.Context) (scaling.Series, error) {
	r := l.Reader
	if r == nil {
		switch l.Path {
		case "":
			return nil, errors.New("log source: path is required")
		case "-":
			r = os.Stdin
		default:
			f, err := os.Open(l.Path)
			if err != nil {
				return nil, fmt.Errorf("open benchmark log: %w", err)
			}
			defer f.Close()
			r = f
		}
	}

	obs, err := ParseLog(ctx, r)
	if err != nil {
		return nil, err
	}
	return scaling.NewSeries(obs)
}

// ParseLog extracts observations from r, in input order.
func ParseLog(ctx context.Context, r io.Reader) ([]scaling.Observation, error) {
	var obs []scaling.Observation
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		m := benchLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		size, err := strconv.ParseFloat(strings.TrimSuffix(m[1], "%"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid size %q: %w", lineNo, m[1], err)
		}
		wall, err := walltime.ParseSeconds(m[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		obs = append(obs, scaling.Observation{Size: size, WallSeconds: wall})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read benchmark log: %w", err)
	}
	return obs, nil
}
