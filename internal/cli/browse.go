package cli

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tfomics/tfomics/pkg/alleleseq"
	"github.com/tfomics/tfomics/pkg/pipeline"
)

// browseCommand creates the interactive candidate browser command.
func (c *CLI) browseCommand() *cobra.Command {
	var (
		dataset   string
		countPath string
		fdrPath   string
		fdr       float64
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Interactively browse candidate SNPs",
		Long: `Open a terminal browser over the candidate SNPs of a dataset. Candidates
are the heterozygous sites whose symmetry p-value passes the FDR
threshold. Selecting a site prints its allele counts and winning
parent.`,
		Example: `  tfomics browse --counts counts.txt --fdr-file fdr.txt
  tfomics browse --counts counts.txt --fdr-file fdr.txt --fdr 0.01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := alleleseq.Open(dataset, countPath, fdrPath)
			if err != nil {
				return err
			}

			candidates := ds.Candidates(fdr)
			if len(candidates) == 0 {
				printWarning("No candidate SNPs at FDR %.3g", fdr)
				return nil
			}

			model := newBrowseModel(ds.Name, candidates)
			program := tea.NewProgram(model, tea.WithContext(cmd.Context()))
			final, err := program.Run()
			if err != nil {
				return fmt.Errorf("run browser: %w", err)
			}

			m, ok := final.(browseModel)
			if !ok || !m.selected {
				return nil
			}

			snp := m.candidates[m.cursor]
			printSuccess("%s:%d", snp.Chromosome, snp.Position)
			printKeyValue("Reference", snp.Reference)
			printKeyValue("Maternal", snp.Maternal)
			printKeyValue("Paternal", snp.Paternal)
			printKeyValue("Winning", snp.Winning)
			printKeyValue("Allele", snp.WinningAllele())
			for _, base := range []string{"A", "C", "G", "T"} {
				printKeyValue("Reads "+base, strconv.Itoa(snp.Count(base)))
			}
			printKeyValue("P-value", fmt.Sprintf("%.4g", snp.PValue))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "dataset name for display")
	cmd.Flags().StringVar(&countPath, "counts", "", "AlleleSeq counts file")
	cmd.Flags().StringVar(&fdrPath, "fdr-file", "", "AlleleSeq FDR file")
	cmd.Flags().Float64Var(&fdr, "fdr", pipeline.DefaultFDR, "FDR threshold for candidate sites")

	_ = cmd.MarkFlagRequired("counts")
	_ = cmd.MarkFlagRequired("fdr-file")

	return cmd
}

// =============================================================================
// Browser Model
// =============================================================================

var (
	browseTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	browseSelectedStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	browseNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	browseDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	browseHelpStyle     = lipgloss.NewStyle().Foreground(colorGray)
)

// browseModel is the bubbletea model for the candidate browser.
type browseModel struct {
	name       string
	candidates []alleleseq.SNP
	cursor     int
	offset     int
	height     int
	selected   bool
	quitting   bool
}

func newBrowseModel(name string, candidates []alleleseq.SNP) browseModel {
	return browseModel{
		name:       name,
		candidates: candidates,
		height:     20,
	}
}

// Init implements tea.Model.
func (m browseModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Leave room for the title, table borders and help line.
		m.height = msg.Height - 8
		if m.height < 3 {
			m.height = 3
		}
		m.clampOffset()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			m.clampOffset()

		case "down", "j":
			if m.cursor < len(m.candidates)-1 {
				m.cursor++
			}
			m.clampOffset()

		case "g", "home":
			m.cursor = 0
			m.clampOffset()

		case "G", "end":
			m.cursor = len(m.candidates) - 1
			m.clampOffset()

		case "enter":
			m.selected = true
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// clampOffset keeps the cursor inside the visible window.
func (m *browseModel) clampOffset() {
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// View implements tea.Model.
func (m browseModel) View() string {
	if m.quitting {
		return ""
	}

	title := fmt.Sprintf("%s · %d candidates", m.name, len(m.candidates))
	if m.name == "" {
		title = fmt.Sprintf("%d candidates", len(m.candidates))
	}

	end := m.offset + m.height
	if end > len(m.candidates) {
		end = len(m.candidates)
	}

	rows := make([][]string, 0, end-m.offset)
	for _, snp := range m.candidates[m.offset:end] {
		rows = append(rows, []string{
			snp.Chromosome,
			strconv.Itoa(snp.Position),
			snp.Maternal + "/" + snp.Paternal,
			snp.Winning,
			fmt.Sprintf("%.3g", snp.PValue),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(browseDimStyle).
		Headers("Chrom", "Position", "Alleles", "Winning", "P-value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return browseHelpStyle.Bold(true)
			}
			if m.offset+row == m.cursor {
				return browseSelectedStyle
			}
			return browseNormalStyle
		})

	help := browseHelpStyle.Render("↑/↓ move · enter select · q quit")

	return browseTitleStyle.Render(title) + "\n" + t.Render() + "\n" + help + "\n"
}
