package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/gesture"
	"github.com/holla2040/droidscript/internal/script/profile"
)

func newTrajectoryCmd(a *app) *cobra.Command {
	var (
		from, to    string
		profileName string
		seed        int64
		format      string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "trajectory",
		Short: "Plot the path a human drag would follow",
		Long: `Plan a human drag with the selected gesture profile and render it.
The line is the raw trajectory; the dots are the points actually sent to the
device, so their spacing shows the speed profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parsePoint(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := parsePoint(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if profileName == "" {
				profileName = a.cfg.Gesture.Profile
			}
			prof, err := profile.Find(a.cfg.Gesture.ProfilesDir, profileName)
			if err != nil {
				return err
			}
			if seed == 0 {
				seed = a.cfg.Gesture.Seed
			}
			synth := gesture.NewSynthesizer(nil)
			if seed != 0 {
				synth = gesture.Seeded(seed)
			}
			plan := gesture.PlanDrag(synth, start, end, prof.Drag)

			if output == "" {
				output = "trajectory." + format
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			title := fmt.Sprintf("%s: %s, %s", prof.Name, prof.Drag.Trajectory, prof.Drag.Speed)
			if err := gesture.WritePlot(f, title, plan, format); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d points, %s per segment)\n", output, len(plan.Points), plan.PerSegment)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "200,1800", "start point x,y")
	cmd.Flags().StringVar(&to, "to", "880,600", "end point x,y")
	cmd.Flags().StringVar(&profileName, "profile", "", "gesture profile (default gesture.profile)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed, 0 for gesture.seed or time-based")
	cmd.Flags().StringVar(&format, "format", "png", "image format: "+strings.Join(gesture.PlotFormats, ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default trajectory.<format>)")
	return cmd
}

func parsePoint(s string) (actuator.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return actuator.Point{}, fmt.Errorf("want x,y, got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return actuator.Point{}, fmt.Errorf("bad x in %q", s)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return actuator.Point{}, fmt.Errorf("bad y in %q", s)
	}
	return actuator.Point{X: x, Y: y}, nil
}

func newProfilesCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List gesture profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := profile.LoadAllProfiles(a.cfg.Gesture.ProfilesDir)
			if err != nil {
				return err
			}
			profiles = append([]*profile.GestureProfile{profile.Default()}, profiles...)
			summaries := profile.Summarize(profiles)

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTRAJECTORY\tSPEED\tDESCRIPTION")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Trajectory, s.Speed, s.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print profiles as JSON")
	return cmd
}
