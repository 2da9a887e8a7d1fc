package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/masterkusok/mpprefs/internal/api"
	"github.com/masterkusok/mpprefs/internal/prefs"
	"github.com/masterkusok/mpprefs/internal/value"
)

var (
	getType string
	setType string
)

func attach() (*prefs.Preferences, error) {
	client := api.NewClient(cfg.Client.Endpoint, cfg.Client.Origin, api.WithClientLogger(logger))
	p, err := prefs.New(client, prefs.WithLogger(logger), prefs.WithTimeout(cfg.Client.Timeout))
	if err != nil {
		return nil, fmt.Errorf("attach to %s: %w", cfg.Client.Endpoint, err)
	}
	return p, nil
}

// parseValue builds a typed value from a CLI argument. Sets are given as
// a JSON array.
func parseValue(kind, raw string) (value.Value, error) {
	switch kind {
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(b), nil
	case "int", "int64":
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return value.Value{}, err
		}
		return value.Int64(i), nil
	case "float", "float64":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return value.Value{}, err
		}
		return value.Float64(f), nil
	case "string":
		return value.String(raw), nil
	case "set":
		set, err := value.UnmarshalSet(raw)
		if err != nil {
			return value.Value{}, err
		}
		return value.StringSetOf(set), nil
	}
	return value.Value{}, fmt.Errorf("unknown type %q", kind)
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := attach()
		if err != nil {
			return err
		}
		defer p.Close()

		key := args[0]
		if !p.Contains(key) {
			return fmt.Errorf("preference %q not set", key)
		}

		out := cmd.OutOrStdout()
		switch getType {
		case "bool":
			fmt.Fprintln(out, p.GetBool(key, false))
		case "int", "int64":
			fmt.Fprintln(out, p.GetInt64(key, 0))
		case "float", "float64":
			fmt.Fprintln(out, p.GetFloat64(key, 0))
		case "set":
			fmt.Fprintln(out, value.MarshalSet(p.GetStringSet(key, value.NewSet())))
		case "string":
			fmt.Fprintln(out, p.GetString(key, ""))
		default:
			v, ok := p.GetAll()[key]
			if !ok {
				return fmt.Errorf("preference %q not set", key)
			}
			fmt.Fprintf(out, "%s (%s)\n", v, v.Kind())
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseValue(setType, args[1])
		if err != nil {
			return fmt.Errorf("parse value: %w", err)
		}

		p, err := attach()
		if err != nil {
			return err
		}
		defer p.Close()

		if !p.Edit().Put(args[0], v).Commit() {
			return fmt.Errorf("commit failed")
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <key>...",
	Short: "Remove preferences",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := attach()
		if err != nil {
			return err
		}
		defer p.Close()

		editor := p.Edit()
		for _, key := range args {
			editor.Remove(key)
		}
		if !editor.Commit() {
			return fmt.Errorf("commit failed")
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every preference",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := attach()
		if err != nil {
			return err
		}
		defer p.Close()

		if !p.Edit().Clear().Commit() {
			return fmt.Errorf("commit failed")
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every preference as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := attach()
		if err != nil {
			return err
		}
		defer p.Close()

		all := p.GetAll()
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, k := range keys {
			if err := enc.Encode(map[string]value.Value{k: all[k]}); err != nil {
				return err
			}
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the key of every change made by other processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := attach()
		if err != nil {
			return err
		}
		defer p.Close()

		out := cmd.OutOrStdout()
		reg := p.Register(prefs.ListenerFunc(func(_ *prefs.Preferences, key string) {
			if key == "" {
				fmt.Fprintln(out, "(cleared)")
				return
			}
			fmt.Fprintln(out, key)
		}))
		defer reg.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	getCmd.Flags().StringVarP(&getType, "type", "t", "", "Read as bool, int, float, string or set (default: decode)")
	setCmd.Flags().StringVarP(&setType, "type", "t", "string", "Value type: bool, int, float, string or set")
}
