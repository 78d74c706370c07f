package sweep

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/daryltucker/ollama-sweep/internal/model"
)

// ParseInts parses a comma-separated integer list such as "2048,4096".
func ParseInts(field, s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, &model.ConfigurationError{Field: field, Reason: fmt.Sprintf("invalid integer %q", part)}
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseFloats parses a comma-separated float list such as "0,0.4".
func ParseFloats(field, s string) ([]float64, error) {
	var out []float64
	for _, part := range splitList(s) {
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, &model.ConfigurationError{Field: field, Reason: fmt.Sprintf("invalid number %q", part)}
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseSeeds parses the seed axis. An empty input is one server-chosen
// seed; blank entries inside a list are server-chosen too.
func ParseSeeds(s string) ([]*int, error) {
	if strings.TrimSpace(s) == "" {
		return []*int{nil}, nil
	}
	var out []*int
	for _, part := range splitList(s) {
		if part == "" {
			out = append(out, nil)
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, &model.ConfigurationError{Field: "seed", Reason: fmt.Sprintf("invalid seed %q", part)}
		}
		out = append(out, lo.ToPtr(v))
	}
	return out, nil
}

func splitList(s string) []string {
	return lo.Map(strings.Split(s, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
}

// LoadPrompts reads one prompt per line, skipping blank lines and # comments.
func LoadPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.ConfigurationError{Field: "prompt-file", Reason: err.Error()}
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	if len(prompts) == 0 {
		return nil, &model.ConfigurationError{Field: "prompt-file", Reason: "no prompts found in " + path}
	}
	return prompts, nil
}
