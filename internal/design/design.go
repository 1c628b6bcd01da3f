// Package design emits the contrast design files consumed by the
// differential testing stage: one file per (namespace, non-control
// condition), pairing control samples against that condition's samples.
package design

import (
	"bufio"
	"fmt"
	"os"

	"github.com/seanlaidlaw/crispr-screen-counter/internal/samplesheet"
)

// Row marks one sample as control (1,0) or treatment (0,1).
type Row struct {
	Sample    string
	Control   int
	Treatment int
}

// Contrast is the design table for one control-vs-condition comparison.
type Contrast struct {
	Condition string
	Rows      []Row
}

// ForCondition builds the contrast for one non-control condition. Exactly
// the control samples and the condition's samples are included, in sheet
// order; samples under any other condition are excluded from this design.
func ForCondition(samples []samplesheet.Sample, condition string) (Contrast, error) {
	if condition == samplesheet.ControlCondition {
		return Contrast{}, fmt.Errorf("condition %q is the baseline, not a contrast", condition)
	}

	c := Contrast{Condition: condition}
	controls, treatments := 0, 0
	for _, s := range samples {
		switch s.Condition {
		case samplesheet.ControlCondition:
			c.Rows = append(c.Rows, Row{Sample: s.ID, Control: 1, Treatment: 0})
			controls++
		case condition:
			c.Rows = append(c.Rows, Row{Sample: s.ID, Control: 0, Treatment: 1})
			treatments++
		}
	}
	if controls == 0 {
		return Contrast{}, fmt.Errorf("contrast %s has no control samples", condition)
	}
	if treatments == 0 {
		return Contrast{}, fmt.Errorf("contrast %s has no treatment samples", condition)
	}
	return c, nil
}

// Write emits the design table: header sample<TAB>control<TAB>treatment, one
// row per included sample.
func Write(path string, c Contrast) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating design file %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "sample\tcontrol\ttreatment")
	for _, row := range c.Rows {
		fmt.Fprintf(w, "%s\t%d\t%d\n", row.Sample, row.Control, row.Treatment)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing design file %s: %w", path, err)
	}
	return nil
}
