package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/bdcompat/internal/app"
	"github.com/dshills/bdcompat/internal/vfs"
)

func newFSCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fs",
		Short: "Inspect and edit the virtual filesystem",
	}
	cmd.AddCommand(
		newFSListCommand(g),
		newFSTreeCommand(g),
		newFSCatCommand(g),
		newFSDuCommand(g),
		newFSMkdirCommand(g),
		newFSRmCommand(g),
		newFSPutCommand(g),
		newFSGetCommand(g),
		newFSExportCommand(g),
		newFSImportCommand(g),
	)
	return cmd
}

// withFS runs fn on the virtual filesystem without loading plugins.
func (g *globals) withFS(fn func(f *vfs.FS) error) error {
	l, err := g.open(false)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l.FS())
}

func argOrRoot(args []string) string {
	if len(args) == 0 {
		return "/"
	}
	return args[0]
}

func newFSListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [PATH]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withFS(func(f *vfs.FS) error {
				entries, err := f.ReadDir(argOrRoot(args))
				if err != nil {
					return err
				}
				for _, e := range entries {
					info, err := e.Info()
					if err != nil {
						return err
					}
					if e.IsDir() {
						fmt.Fprintf(cmd.OutOrStdout(), "%10s  %s/\n", "-", e.Name())
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%10d  %s\n", info.Size(), e.Name())
				}
				return nil
			})
		},
	}
}

func newFSTreeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [PATH]",
		Short: "Print every path below a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withFS(func(f *vfs.FS) error {
				return f.Walk(argOrRoot(args), func(p string, d fs.DirEntry, err error) error {
					if err != nil {
						return err
					}
					if d.IsDir() && p != "/" {
						p += "/"
					}
					fmt.Fprintln(cmd.OutOrStdout(), p)
					return nil
				})
			})
		},
	}
}

func newFSCatCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cat PATH",
		Short: "Print a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withFS(func(f *vfs.FS) error {
				data, err := f.ReadFile(args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}

func newFSDuCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "du [PATH]",
		Short: "Print the total size of the files below a path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withFS(func(f *vfs.FS) error {
				size, err := f.DirectorySize(argOrRoot(args))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", size, vfs.Clean(argOrRoot(args)))
				return nil
			})
		},
	}
}

func newFSMkdirCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir PATH",
		Short: "Create a directory and its missing parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withFS(func(f *vfs.FS) error {
				return f.MkdirRecursive(args[0])
			})
		},
	}
}

func newFSRmCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rm PATH",
		Short: "Remove a file or a directory with everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withFS(func(f *vfs.FS) error {
				return f.RemoveRecursive(args[0])
			})
		},
	}
}

func newFSPutCommand(g *globals) *cobra.Command {
	var (
		target string
		filter string
		exact  bool
	)
	cmd := &cobra.Command{
		Use:   "put LOCAL...",
		Short: "Copy local files into the virtual filesystem",
		Long: `Copy local files into the virtual filesystem. By default each file keeps
its name inside the --to directory. With --exact, --to names the destination
file itself.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withFS(func(f *vfs.FS) error {
				picker := vfs.PathPicker{Paths: args}
				written, err := f.ImportFile(cmd.Context(), picker, target, !exact, len(args) > 1, filter)
				for _, p := range written {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "/BD/plugins", "Destination directory, or file with --exact")
	cmd.Flags().StringVar(&filter, "filter", "", "Comma separated suffixes to accept, such as .js,.lua")
	cmd.Flags().BoolVar(&exact, "exact", false, "Write to --to itself instead of a file inside it")
	return cmd
}

func newFSGetCommand(g *globals) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get PATH",
		Short: "Copy a file out of the virtual filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withFS(func(f *vfs.FS) error {
				return f.ExportFile(args[0], vfs.DirDownloader{Dir: out})
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", ".", "Local directory to write to")
	return cmd
}

func newFSExportCommand(g *globals) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole filesystem to " + vfs.DumpName,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withFS(func(f *vfs.FS) error {
				if err := f.DownloadZip(vfs.DirDownloader{Dir: out}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(out, vfs.DumpName))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", ".", "Local directory to write to")
	return cmd
}

func newFSImportCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import ZIP",
		Short: "Replace the whole filesystem with the content of a ZIP archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			info, err := file.Stat()
			if err != nil {
				return err
			}
			return g.withFS(func(f *vfs.FS) error {
				if err := f.ImportZip(file, info.Size()); err != nil {
					return &app.ComponentError{Component: "vfs", Op: "import " + args[0], Err: err}
				}
				return nil
			})
		},
	}
}
