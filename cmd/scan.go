package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/devlens/internal/registry"
	"github.com/conneroisu/devlens/internal/types"
	"github.com/conneroisu/devlens/internal/validation"
)

var scanCmd = &cobra.Command{
	Use:   "scan <page.html|URL|->",
	Short: "List the tracked components of a rendered page",
	Long: `Parse a rendered page and list every component carrying marker
attributes, in document order, as the overlay would see it.

Examples:
  devlens scan dist/index.html                 # Table output
  devlens scan http://localhost:4321/ -o json  # Fetch and print JSON
  curl -s localhost:4321 | devlens scan - -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var scanFlags *OutputFlags

func init() {
	rootCmd.AddCommand(scanCmd)
	scanFlags = AddOutputFlags(scanCmd)
}

// scannedComponent is the printable form of a tracked component.
type scannedComponent struct {
	ID     string      `json:"id" yaml:"id"`
	Name   string      `json:"name" yaml:"name"`
	Path   string      `json:"path,omitempty" yaml:"path,omitempty"`
	Order  *int        `json:"order,omitempty" yaml:"order,omitempty"`
	Total  int         `json:"total" yaml:"total"`
	Stable bool        `json:"stable" yaml:"stable"`
	Props  interface{} `json:"props,omitempty" yaml:"props,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := scanFlags.Validate(); err != nil {
		return err
	}
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	src, err := openPage(cmd, args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	doc, err := html.Parse(src)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	reg := registry.New(cfg.Mode(), logger)
	reg.Scan(cmd.Context(), doc)

	components := make([]scannedComponent, 0, reg.Count())
	for _, c := range reg.All() {
		components = append(components, toScanned(c))
	}

	out := cmd.OutOrStdout()
	switch scanFlags.Format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(components)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(components)
	default:
		return scanTable(out, components)
	}
}

func toScanned(c *types.TrackedComponent) scannedComponent {
	s := scannedComponent{
		ID:     c.ID,
		Name:   c.Name,
		Path:   c.DataPath,
		Total:  c.Total,
		Stable: c.Stable,
		Props:  c.Props,
	}
	if c.Ordered {
		order := c.Order
		s.Order = &order
	}
	return s
}

func scanTable(w io.Writer, components []scannedComponent) error {
	if len(components) == 0 {
		fmt.Fprintln(w, "No components found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPATH\tORDER\tSTABLE")
	for _, c := range components {
		order := "-"
		if c.Order != nil {
			order = strconv.Itoa(*c.Order)
		}
		path := c.Path
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", c.ID, c.Name, path, order, c.Stable)
	}
	fmt.Fprintf(tw, "\nTotal: %d components\n", len(components))
	return tw.Flush()
}

// openPage opens a file, "-" for stdin, or an http(s) URL.
func openPage(cmd *cobra.Command, source string) (io.ReadCloser, error) {
	switch {
	case source == "-":
		return io.NopCloser(cmd.InOrStdin()), nil

	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		if err := validation.ValidateURL(source); err != nil {
			return nil, err
		}
		client := &http.Client{Timeout: 30 * time.Second}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch %s: %s", source, resp.Status)
		}
		return resp.Body, nil

	default:
		if err := validation.ValidatePath(source); err != nil {
			return nil, err
		}
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", source, err)
		}
		return f, nil
	}
}
