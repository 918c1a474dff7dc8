package cli

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/iudanet/doccollab/internal/models"
)

// regionFlags флаги -lines и -section
type regionFlags struct {
	lines   string
	section string
}

func (f *regionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.lines, "lines", "", "line range A-B (inclusive)")
	fs.StringVar(&f.section, "section", "", "section name")
}

// region возвращает nil, если ни один флаг не задан
func (f *regionFlags) region() (*models.Region, error) {
	if f.lines == "" && f.section == "" {
		return nil, nil
	}

	r := &models.Region{Section: f.section}
	if f.lines != "" {
		rng, err := parseRange(f.lines)
		if err != nil {
			return nil, fmt.Errorf("invalid -lines: %w", err)
		}
		r.Lines = rng
	}
	return r, r.Validate()
}

// parseRange разбирает "A-B" или "A"
func parseRange(s string) (*models.Range, error) {
	from, to, found := strings.Cut(s, "-")
	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return nil, fmt.Errorf("bad start %q", from)
	}
	end := start
	if found {
		end, err = strconv.Atoi(strings.TrimSpace(to))
		if err != nil {
			return nil, fmt.Errorf("bad end %q", to)
		}
	}
	return &models.Range{Start: start, End: end}, nil
}
