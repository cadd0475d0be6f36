// Package config provides admission configuration for batch runs.
//
// Configuration Sources:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (BATCH_ADMISSION_*)
//  3. YAML config file
//  4. Default values (lowest priority)
//
// Example usage:
//
//	fs := pflag.NewFlagSet("admission", pflag.ContinueOnError)
//	config.AddFlags(fs)
//	_ = fs.Parse(os.Args[1:])
//
//	cfg, err := config.Load("admission.yaml", fs)
//	if err != nil {
//	    log.Error(err, "failed to load configuration")
//	    return err
//	}
//
//	n := cfg.SizeRun(len(batches), modelID)
//	g, err := gate.New(n)
//	l, err := ledger.New(cfg.TotalTokenBudget)
//
// Per-model token cost overrides follow the usual ConfigMap entry format:
// a "default" entry plus override entries carrying a model_id field.
// Invalid entries are logged and skipped, never fatal.
//
// All values are validated on load: the concurrency ceiling, total budget,
// and average cost must be positive.
package config
