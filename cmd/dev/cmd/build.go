package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

// containerTool is the dev binary run inside the linux/amd64 build container.
const containerTool = "./dev-linux-amd64"

// target is a board the cli is shipped for.
type target struct {
	Board string
	OS    string
	Arch  string
}

var boards = map[string]target{
	"nanopi": {Board: "nanopi", OS: "linux", Arch: "arm"},  // NanoPi NEO, Allwinner H3
	"rpi":    {Board: "rpi", OS: "linux", Arch: "arm"},     // Raspberry Pi 2/3, 32 bit OS
	"rpi64":  {Board: "rpi64", OS: "linux", Arch: "arm64"}, // Raspberry Pi 3/4/5, 64 bit OS
}

func hostTarget() target {
	return target{Board: "host", OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// resolveTargets maps the board flag to build targets; "all" is every board
// plus the host.
func resolveTargets(board string) ([]target, error) {
	switch board {
	case "", "host":
		return []target{hostTarget()}, nil
	case "all":
		res := []target{hostTarget()}
		for _, name := range boardNames() {
			res = append(res, boards[name])
		}
		return res, nil
	}
	t, ok := boards[board]
	if !ok {
		return nil, fmt.Errorf("unknown board %q (one of host, all, %s)", board, strings.Join(boardNames(), ", "))
	}
	return []target{t}, nil
}

func boardNames() []string {
	names := make([]string, 0, len(boards))
	for name := range boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t target) native() bool {
	return t.OS == runtime.GOOS && t.Arch == runtime.GOARCH
}

func (t target) output() string {
	if t.Board == "host" {
		return "dist/bme680"
	}
	return fmt.Sprintf("dist/bme680-%s", t.Board)
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the bme680 cli for the host or a target board",
		RunE: func(cmd *cobra.Command, args []string) error {
			board := cmd.Flag("board").Value.String()
			version := cmd.Flag("version").Value.String()
			targets, err := resolveTargets(board)
			if err != nil {
				return err
			}
			noCgo, err := cmd.Flags().GetBool("no-cgo")
			if err != nil {
				return fmt.Errorf("could not get no-cgo flag: %w", err)
			}
			inContainer, err := cmd.Flags().GetBool("docker")
			if err != nil {
				return fmt.Errorf("could not get docker flag: %w", err)
			}
			if inContainer {
				noCache, err := cmd.Flags().GetBool("no-cache")
				if err != nil {
					return fmt.Errorf("could not get no-cache flag: %w", err)
				}
				args := []string{"build", "--board", board, "--version", version}
				if noCgo {
					args = append(args, "--no-cgo")
				}
				return build.Docker(cmd.Context(), containerTool, args, build.DockerBuildOpts{
					NoCache: noCache,
					Image:   "gophertribe/gobuild:1.25-bookworm",
				})
			}
			for _, t := range targets {
				// cross builds need the arm toolchains of the build container when cgo is on
				if !t.native() && !noCgo && runtime.GOOS != "linux" {
					return fmt.Errorf("cannot cross-compile %s with cgo on %s, use --docker or --no-cgo", t.Board, runtime.GOOS)
				}
				err := build.GoBuild(t.output(), "./cmd/bme680", build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "main",
					// the MCP2221 bridge needs cgo for hidapi
					EnableCgo: !noCgo,
					Arch:      t.Arch,
					OS:        t.OS,
				})
				if err != nil {
					return fmt.Errorf("could not build %s: %w", t.Board, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("board", "host", fmt.Sprintf("target board: host, all, %s", strings.Join(boardNames(), ", ")))
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().Bool("docker", false, "build inside the cross-compilation container")
	cmd.Flags().Bool("no-cache", false, "do not use cache when building in the container")
	cmd.Flags().Bool("no-cgo", false, "build without cgo, drops MCP2221 support")

	return cmd
}

func BoardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List the boards the cli can be built for",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := resolveTargets("all")
			if err != nil {
				return err
			}
			for _, t := range targets {
				cmd.Printf("%-8s %s/%s  %s\n", t.Board, t.OS, t.Arch, t.output())
			}
			return nil
		},
	}
}
