// Command gwctl is the gateway's operator CLI: offline config validation, a
// query-compiler dry run, and a database inventory listing, none of which
// touch a live session (SPEC_FULL.md section 4.11).
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/z3950gw/gateway/internal/config"
	"github.com/z3950gw/gateway/internal/rpn"
)

func main() {
	root := &cobra.Command{
		Use:   "gwctl",
		Short: "operator CLI for the Z39.50 gateway",
	}
	root.AddCommand(newConfigCmd(), newQueryCmd(), newDBCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{Use: "config", Short: "configuration inspection"}
	validate := &cobra.Command{
		Use:   "validate <path>",
		Short: "load and validate a GatewayConfig file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("config valid: %d database(s)\n", len(cfg.Databases))
			return nil
		},
	}
	configCmd.AddCommand(validate)
	return configCmd
}

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{Use: "db", Short: "database inventory"}
	list := &cobra.Command{
		Use:   "list <path>",
		Short: "list configured databases, querytype, and supported record syntaxes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Databases))
			for name := range cfg.Databases {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				db := cfg.Databases[name]
				qt := string(db.Search.QueryType)
				if qt == "" {
					qt = "pqf"
				}
				fmt.Printf("%s\tquerytype=%s\tsyntaxes=%s\n", name, qt, strings.Join(db.SupportedSyntaxes(), ","))
			}
			return nil
		},
	}
	dbCmd.AddCommand(list)
	return dbCmd
}

func newQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{Use: "query", Short: "query compiler dry run"}
	var dbName, syntax string
	compile := &cobra.Command{
		Use:   "compile <term>",
		Short: "compile a single-term test query against a configured database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			db, ok := cfg.Databases[dbName]
			if !ok {
				return fmt.Errorf("database %q not found", dbName)
			}
			attrMap := map[int]string{}
			for k, v := range db.Search.Map {
				attrMap[k] = v.Index
			}
			queryCfg := rpn.QueryConfig{AttrMap: attrMap, IDPolicy: rpn.ResultSetIDPolicy(db.ResultSetID)}
			term := rpn.Term{Term: args[0], Attrs: []rpn.Attr{{Type: rpn.AttrUse, Value: 1}, {Type: rpn.AttrRelation, Value: 3}}}

			var out string
			switch syntax {
			case "solr":
				s, e := rpn.CompileSolr(term, queryCfg, noopLookup{})
				if e != nil {
					return e
				}
				out = s
			default:
				s, e := rpn.CompileCQL(term, queryCfg, noopLookup{})
				if e != nil {
					return e
				}
				out = s
			}
			fmt.Println(out)
			return nil
		},
	}
	compile.Flags().String("config", "", "path to gateway YAML config")
	compile.Flags().StringVar(&dbName, "db", "", "database name")
	compile.Flags().StringVar(&syntax, "syntax", "cql", "cql|solr")
	_ = compile.MarkFlagRequired("db")
	queryCmd.AddCommand(compile)
	return queryCmd
}

// noopLookup satisfies rpn.ResultSetLookup for the dry-run compiler, which
// never emits an RSID node.
type noopLookup struct{}

func (noopLookup) Lookup(string) (string, string, bool, bool) { return "", "", false, false }
