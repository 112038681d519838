package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ingertb/rawsim/sim/bss"
)

// defaultsCmd prints the built-in scenario as a starting point for --config.
var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the default scenario as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeDefaults(os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// writeDefaults encodes bss.DefaultScenario. The output loads back through
// bss.LoadScenario with strict field checking.
func writeDefaults(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(bss.DefaultScenario()); err != nil {
		return fmt.Errorf("encoding default scenario: %w", err)
	}
	return enc.Close()
}
