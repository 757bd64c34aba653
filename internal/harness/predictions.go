package harness

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadPredictions parses a validation file: one unsigned prediction per
// line. Blank lines are ignored.
func ReadPredictions(r io.Reader) ([]int, error) {
	var preds []int
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseUint(text, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("validation line %d: %w", line, err)
		}
		preds = append(preds, int(v))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return preds, nil
}

// WritePredictions writes preds one per line.
func WritePredictions(w io.Writer, preds []int) error {
	bw := bufio.NewWriter(w)
	for _, p := range preds {
		if p < 0 {
			return fmt.Errorf("negative prediction %d", p)
		}
		bw.WriteString(strconv.Itoa(p))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadPredictionsFile reads a validation file from disk.
func ReadPredictionsFile(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open validation file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadPredictions(f)
}

// WritePredictionsFile truncates path and writes preds to it.
func WritePredictionsFile(path string, preds []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create validation file: %w", err)
	}
	if err := WritePredictions(f, preds); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
