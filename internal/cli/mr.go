package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tfomics/tfomics/pkg/cache"
	"github.com/tfomics/tfomics/pkg/errors"
	"github.com/tfomics/tfomics/pkg/mendel"
	"github.com/tfomics/tfomics/pkg/pipeline"
)

// mrCommand creates the Mendelian randomisation command.
func (c *CLI) mrCommand() *cobra.Command {
	var (
		exposurePath string
		gwasPath     string
		opts         mendel.Options
		noCache      bool
		refresh      bool
		jsonPath     string
	)

	cmd := &cobra.Command{
		Use:   "mr",
		Short: "Run a Mendelian randomisation analysis",
		Long: `Relate binding effect sizes to GWAS summary statistics. Each exposure
SNP is joined to the GWAS records with the same rsid; the ratio of the
two effects estimates the total causal effect of binding on the trait.
P-values across all pairs are Benjamini-Hochberg corrected.

Both inputs are tab-separated tables with a header row. The exposure
table needs snp, ref, alt, effect and stderr columns; the GWAS table
needs rsid, trait, allele, beta, stderr, maf, hwe and iscore columns.`,
		Example: `  tfomics mr --exposures effects.tsv --gwas gwas.tsv

  # Restrict to two traits and permute rsids as a negative control
  tfomics mr --exposures effects.tsv --gwas gwas.tsv \
    --traits height,bmi --permute --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := c.newRunner(noCache)
			if err != nil {
				return err
			}
			defer runner.Close()

			exposures, err := readExposures(exposurePath)
			if err != nil {
				return err
			}
			gwas, err := readGWASCached(cmd.Context(), runner, gwasPath)
			if err != nil {
				return err
			}

			tracker := newProgress(c.Logger)
			results, cached, err := runner.MR(cmd.Context(), exposures, gwas, opts, refresh)
			if err != nil {
				return err
			}
			tracker.done(fmt.Sprintf("Tested %d SNP/trait pairs", len(results)))

			printSuccess("Analysed %d exposures against %d GWAS records", len(exposures), len(gwas))
			printStats(len(exposures), len(results), cached)
			printNewline()
			printMRTable(results)

			if jsonPath != "" {
				data, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
					return err
				}
				printFile(jsonPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&exposurePath, "exposures", "", "exposure table (TSV)")
	cmd.Flags().StringVar(&gwasPath, "gwas", "", "GWAS summary statistics (TSV)")
	cmd.Flags().Float64Var(&opts.MinMAF, "min-maf", 0, "minimum minor allele frequency (default 1e-3)")
	cmd.Flags().Float64Var(&opts.MinHWE, "min-hwe", 0, "minimum Hardy-Weinberg p-value (default 1e-50)")
	cmd.Flags().Float64Var(&opts.MinIScore, "min-iscore", 0, "minimum imputation score (default 0.9)")
	cmd.Flags().StringSliceVar(&opts.Traits, "traits", nil, "restrict the analysis to these traits")
	cmd.Flags().BoolVar(&opts.Permute, "permute", false, "permute GWAS rsids as a negative control")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed for the permutation")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching entirely")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute even if a cached result exists")
	cmd.Flags().StringVarP(&jsonPath, "output", "o", "", "write the results as JSON")

	_ = cmd.MarkFlagRequired("exposures")
	_ = cmd.MarkFlagRequired("gwas")

	return cmd
}

// printMRTable renders the causal-effect estimates.
func printMRTable(results []mendel.Result) {
	if len(results) == 0 {
		printWarning("No SNP/trait pairs to test")
		return
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	format := func(v float64) string {
		if math.IsNaN(v) {
			return "—"
		}
		return fmt.Sprintf("%.4g", v)
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.SNP, r.Trait, r.EffectAllele,
			format(r.Causal), format(r.Stderr), format(r.P), format(r.Q),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("SNP", "Trait", "Allele", "Causal", "Stderr", "P", "Q").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if col == 3 {
				return lipgloss.NewStyle().Foreground(colorCyan)
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		})

	fmt.Println(t.Render())
}

// readExposures parses an exposure TSV table.
func readExposures(path string) ([]mendel.Exposure, error) {
	var out []mendel.Exposure
	err := readTable(path, []string{"snp", "ref", "alt", "effect", "stderr"},
		func(get func(string) string, line int) error {
			exp := mendel.Exposure{
				SNP: get("snp"),
				Ref: get("ref"),
				Alt: get("alt"),
			}
			var err error
			if exp.Effect, err = strconv.ParseFloat(get("effect"), 64); err != nil {
				return fmt.Errorf("line %d: effect: %w", line, err)
			}
			if exp.EffectStderr, err = strconv.ParseFloat(get("stderr"), 64); err != nil {
				return fmt.Errorf("line %d: stderr: %w", line, err)
			}
			out = append(out, exp)
			return nil
		})
	return out, err
}

// readGWASCached loads a GWAS table through the runner's cache, keyed
// by a hash of the file contents so edits invalidate the entry.
func readGWASCached(ctx context.Context, runner *pipeline.Runner, path string) ([]mendel.GWASRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open table")
	}

	key := runner.Keyer.TableKey("gwas", cache.Hash(data))
	if cached, ok, _ := runner.Cache.Get(ctx, key); ok {
		var records []mendel.GWASRecord
		if json.Unmarshal(cached, &records) == nil {
			return records, nil
		}
	}

	records, err := readGWAS(path)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(records); err == nil {
		_ = runner.Cache.Set(ctx, key, encoded, cache.TTLTable)
	}
	return records, nil
}

// gwasColumns are the required columns of a GWAS summary table.
var gwasColumns = []string{"rsid", "trait", "allele", "beta", "stderr", "maf", "hwe", "iscore"}

// readGWAS parses a GWAS summary statistics TSV table. Records with
// missing fields are dropped; malformed values are an error.
func readGWAS(path string) ([]mendel.GWASRecord, error) {
	var out []mendel.GWASRecord
	err := readTable(path, gwasColumns,
		func(get func(string) string, line int) error {
			for _, name := range gwasColumns {
				if get(name) == "" {
					return nil // incomplete record, drop it
				}
			}

			rec := mendel.GWASRecord{
				RSID:   get("rsid"),
				Trait:  get("trait"),
				Allele: get("allele"),
			}
			fields := []struct {
				name string
				dst  *float64
			}{
				{"beta", &rec.Beta}, {"stderr", &rec.Stderr},
				{"maf", &rec.MAF}, {"hwe", &rec.HWE}, {"iscore", &rec.IScore},
			}
			for _, f := range fields {
				v, err := strconv.ParseFloat(get(f.name), 64)
				if err != nil {
					return fmt.Errorf("line %d: %s: %w", line, f.name, err)
				}
				*f.dst = v
			}
			out = append(out, rec)
			return nil
		})
	return out, err
}

// readTable streams a tab-separated table with a header row, calling fn
// once per data row with a column accessor.
func readTable(path string, required []string, fn func(get func(string) string, line int) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "open table")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		return errors.New(errors.ErrCodeInvalidFile, "table %s is empty", path)
	}

	cols := make(map[string]int)
	for i, name := range strings.Split(scanner.Text(), "\t") {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return errors.New(errors.ErrCodeInvalidColumn, "table %s is missing the %s column", path, name)
		}
	}

	line := 1
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		get := func(name string) string {
			i := cols[name]
			if i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}
		if err := fn(get, line); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidFile, err, "table %s", path)
		}
	}
	return scanner.Err()
}
