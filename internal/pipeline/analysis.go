package pipeline

import (
	"fmt"

	"go.uber.org/zap"
)

// dispatchAnalyses invokes the external differential testing stage for each
// (namespace, contrast) pair not yet checkpointed. A missing matrix or
// design file is a known-absent precondition: that pair is skipped with a
// log entry and the rest of the batch proceeds. A non-zero exit from the
// tester itself is a real analysis failure and aborts the run with the
// scope's checkpoint cleared.
func (p *Pipeline) dispatchAnalyses(conditions []string) error {
	for _, ns := range p.analysisNamespaces() {
		matrixFile := p.matrixFile(ns)
		for _, condition := range conditions {
			scope := fmt.Sprintf("analysis:%s:%s", ns, condition)
			designFile := p.designFile(condition, ns)

			if !fileExists(matrixFile) || !fileExists(designFile) {
				p.log.Warn("analysis input missing, skipping contrast",
					zap.String("scope", scope),
					zap.String("matrix", matrixFile),
					zap.String("design", designFile))
				continue
			}

			cmd, err := p.toolchain.DifferentialTest(p.opts.AnalysisMode, matrixFile, designFile, p.analysisPrefix(condition, ns))
			if err != nil {
				return err
			}
			err = p.steps.Run(scope, nil, func() error {
				return p.runTool.Run(cmd)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
