package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tfomics/tfomics/pkg/alleleseq"
	"github.com/tfomics/tfomics/pkg/pipeline"
)

// asbCommand creates the allele-specific binding analysis command.
func (c *CLI) asbCommand() *cobra.Command {
	var (
		opts     pipeline.Options
		noCache  bool
		jsonPath string
	)

	cmd := &cobra.Command{
		Use:   "asb",
		Short: "Estimate allele-specific binding effect sizes",
		Long: `Read an AlleleSeq count file and its FDR estimates, select the SNPs
where one allele was bound preferentially at the requested false
discovery rate, and estimate a binding effect size per site. With a
reference genome, the sequence around each site is extracted as well,
optionally with the winning allele substituted and with
dinucleotide-shuffled background sequences.`,
		Example: `  # Effect sizes at 5% FDR
  tfomics asb --dataset CTCF --counts counts.txt --fdr-file fdr.txt

  # Extract peak sequences with the bound allele applied
  tfomics asb --dataset CTCF --counts counts.txt --fdr-file fdr.txt \
    --genome hg19.fa --apply-snps --shuffles 100 --output result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := c.newRunner(noCache)
			if err != nil {
				return err
			}
			defer runner.Close()
			opts.Logger = c.Logger

			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}

			spinner := newSpinnerWithContext(cmd.Context(), "Analysing "+opts.Dataset+"...")
			spinner.Start()

			tracker := newProgress(c.Logger)
			result, err := runner.Execute(cmd.Context(), opts)
			if err != nil {
				spinner.StopWithError(fmt.Sprintf("Analysis failed: %v", err))
				return err
			}
			spinner.StopWithSuccess(fmt.Sprintf("Analysed %s at FDR %g", opts.Dataset, opts.FDR))
			tracker.done(fmt.Sprintf("Estimated %d effect sizes", len(result.Effects)))

			cached := result.CacheInfo.RegionHits > 0 && result.CacheInfo.RegionMisses == 0
			printStats(result.Stats.SNPCount, result.Stats.CandidateCount, cached)
			printNewline()
			printEffectTable(result.Effects)

			if len(result.Sequences) > 0 {
				printNewline()
				printInfo("Extracted %d peak sequences", len(result.Sequences))
			}

			if jsonPath != "" {
				if err := writeResultJSON(jsonPath, result); err != nil {
					return err
				}
				printFile(jsonPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "dataset name (e.g. the transcription factor)")
	cmd.Flags().StringVar(&opts.CountFile, "counts", "", "AlleleSeq count file")
	cmd.Flags().StringVar(&opts.FDRFile, "fdr-file", "", "AlleleSeq FDR estimate file")
	cmd.Flags().Float64Var(&opts.FDR, "fdr", pipeline.DefaultFDR, "false discovery rate for candidate selection")
	cmd.Flags().StringVar(&opts.GenomePath, "genome", "", "reference genome FASTA for sequence extraction")
	cmd.Flags().BoolVar(&opts.ApplySNPs, "apply-snps", false, "substitute the winning allele into each sequence")
	cmd.Flags().IntVar(&opts.Shuffles, "shuffles", 0, "dinucleotide-shuffled backgrounds per sequence")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed for shuffles (default 42)")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "bypass cached genome regions")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching entirely")
	cmd.Flags().StringVarP(&jsonPath, "output", "o", "", "write the full result as JSON")

	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("counts")
	_ = cmd.MarkFlagRequired("fdr-file")

	return cmd
}

// printEffectTable renders the per-site effect sizes.
func printEffectTable(effects []alleleseq.Effect) {
	if len(effects) == 0 {
		printWarning("No candidate sites at this FDR")
		return
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	rows := make([][]string, 0, len(effects))
	for _, e := range effects {
		rows = append(rows, []string{
			e.Chromosome,
			strconv.Itoa(e.Position),
			fmt.Sprintf("%+.4f", e.EffectSize),
			fmt.Sprintf("%.4f", e.Stderr),
			strconv.Itoa(e.Samples),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Chrom", "Position", "Effect", "Stderr", "Samples").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if col == 2 {
				return lipgloss.NewStyle().Foreground(colorCyan)
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		})

	fmt.Println(t.Render())
}

// writeResultJSON writes the analysis result to a file.
func writeResultJSON(path string, result *pipeline.Result) error {
	out := struct {
		SNPs       int                     `json:"snps"`
		Candidates int                     `json:"candidates"`
		Effects    []alleleseq.Effect      `json:"effects"`
		Sequences  []pipeline.PeakSequence `json:"sequences,omitempty"`
	}{
		SNPs:       result.Stats.SNPCount,
		Candidates: result.Stats.CandidateCount,
		Effects:    result.Effects,
		Sequences:  result.Sequences,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// printNewline prints an empty line.
func printNewline() {
	fmt.Println()
}
