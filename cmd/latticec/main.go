// Command latticec compiles feature extraction graphs described in YAML and
// reports the kernel binding and cost for every step. The run subcommand
// additionally executes the compiled graph on the feeds from the graph file
// and prints the outputs.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lattice-ml/lattice/internal/session"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "latticec",
		Short:         "Compile feature extraction graphs to native cells",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(compileCmd(), runCmd())
	return root
}

func compileCmd() *cobra.Command {
	var graphPath string
	var noSIMD bool
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a graph and report kernel selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := openSession(graphPath, noSIMD)
			if err != nil {
				return err
			}
			report(cmd, sess)
			return nil
		},
	}
	cmd.Flags().StringVar(&graphPath, "graph", "", "path to the YAML graph description")
	cmd.Flags().BoolVar(&noSIMD, "no-simd", false, "force scalar kernel selection")
	_ = cmd.MarkFlagRequired("graph")
	return cmd
}

func runCmd() *cobra.Command {
	var graphPath string
	var noSIMD bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile a graph, run it on the file's feeds and print outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, gf, err := openSession(graphPath, noSIMD)
			if err != nil {
				return err
			}
			report(cmd, sess)

			inst := sess.NewInstance()
			defer sess.Release(inst)
			for name, ids := range gf.Feeds {
				if err := sess.Attach(inst, name, ids); err != nil {
					return err
				}
			}
			sess.Run(inst)

			for _, t := range sess.Graph().Tensors() {
				if !t.IsOutput() {
					continue
				}
				values, err := sess.Float32s(inst, t.Name())
				if err != nil {
					return err
				}
				cmd.Printf("%s = %v\n", t.Name(), values)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&graphPath, "graph", "", "path to the YAML graph description")
	cmd.Flags().BoolVar(&noSIMD, "no-simd", false, "force scalar kernel selection")
	_ = cmd.MarkFlagRequired("graph")
	return cmd
}

func openSession(path string, noSIMD bool) (*session.Session, *graphFile, error) {
	gf, err := loadGraphFile(path)
	if err != nil {
		return nil, nil, err
	}
	g, err := gf.build()
	if err != nil {
		return nil, nil, err
	}
	sess, err := session.New(g, nil, session.Options{DisableSIMD: noSIMD, MaxInstances: 1})
	if err != nil {
		return nil, nil, err
	}
	return sess, gf, nil
}

func report(cmd *cobra.Command, sess *session.Session) {
	cmd.Printf("session %s, arena %d bytes\n", sess.ID(), sess.Cell().ArenaSize())
	for _, step := range sess.Graph().Steps() {
		cmd.Printf("  %-12s %-10s -> %-22s cost %d\n",
			step.Name(), step.Operation(), step.Variant(), step.Complexity())
	}
}
