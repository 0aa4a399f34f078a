/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cardbuilder/internal/config"
	"cardbuilder/internal/crash"
	"cardbuilder/internal/docpath"
	"cardbuilder/internal/document"
	"cardbuilder/internal/editor"
	applog "cardbuilder/internal/log"
	"cardbuilder/internal/mutate"
	"cardbuilder/internal/storage"
	"cardbuilder/internal/version"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Card Builder")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cardbuilder version|-v|--version                  Show version")
	fmt.Fprintln(w, "  cardbuilder init <dir> <name>                      Create a workspace with an empty card")
	fmt.Fprintln(w, "  cardbuilder show <dir>                             Print the card tree with node paths")
	fmt.Fprintln(w, "  cardbuilder add <dir> <collection> <tag> [index]   Insert a default component")
	fmt.Fprintln(w, "  cardbuilder rm <dir> <path>                        Remove a node")
	fmt.Fprintln(w, "  cardbuilder mv <dir> <path> <collection> [index]   Move a node")
	fmt.Fprintln(w, "  cardbuilder set-title <dir> <title> [subtitle]     Fill the header title")
	fmt.Fprintln(w, "  cardbuilder history <dir>                          List saved snapshots")
	fmt.Fprintln(w, "  cardbuilder restore <dir>                          Restore the latest snapshot")
	fmt.Fprintln(w, "  cardbuilder search <dir> <text>                    Search node text")
	fmt.Fprintln(w, "  cardbuilder check <dir>                            Audit the card for structural problems")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Tags: %s\n", strings.Join(tagNames(), ", "))
	fmt.Fprintln(w, `Paths use the dotted form, e.g. dsl.body.elements.1.columns.0.elements`)
}

func tagNames() []string {
	out := make([]string, 0, len(document.Tags))
	for _, t := range document.Tags {
		out = append(out, string(t))
	}
	return out
}

func main() {
	cfg, cfgErr := config.Load()
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", cfgErr))
	}
	l.Debug("start", slog.Int("args", len(os.Args)))
	os.Exit(run(os.Args[1:], cfg, os.Stdout))
}

// run executes one command and returns the process exit code.
func run(args []string, cfg config.AppConfig, out io.Writer) int {
	l := applog.WithComponent("cli")
	if len(args) == 0 {
		usage(out)
		return 0
	}
	need := func(n int, what string) bool {
		if len(args) < n+1 {
			fmt.Fprintf(out, "%s requires %s\n", args[0], what)
			usage(out)
			return false
		}
		return true
	}
	fail := func(op string, err error) int {
		l.Error(op+" failed", slog.Any("err", err))
		fmt.Fprintln(out, "Error:", err)
		return 1
	}
	ctx := context.Background()

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintln(out, "Card Builder")
		fmt.Fprintln(out, version.String())
		return 0
	case "init":
		if !need(2, "<dir> and <name>") {
			return 2
		}
		abs, _ := filepath.Abs(args[1])
		l.Info("init workspace", slog.String("root", abs), slog.String("name", args[2]))
		s, err := editor.Create(abs, args[2], editor.OptionsFromConfig(cfg)...)
		if err != nil {
			return fail("init", err)
		}
		fmt.Fprintf(out, "Created workspace %s (card %s)\n", abs, s.DocumentID())
		return 0
	case "show":
		if !need(1, "<dir>") {
			return 2
		}
		return withSession(args[1], cfg, out, func(s *editor.Session) error {
			wh := s.Workspace()
			fmt.Fprintf(out, "Card: %s (%s)\n", wh.Manifest.Name, wh.Manifest.ID)
			for _, is := range wh.Issues {
				fmt.Fprintf(out, "  isolated %s: %s\n", is.Location, is.Message)
			}
			printTree(out, s.Snapshot())
			return nil
		})
	case "add":
		if !need(3, "<dir>, <collection> and <tag>") {
			return 2
		}
		coll, err := docpath.Parse(args[2])
		if err != nil {
			return fail("add", err)
		}
		index, err := optIndex(args, 4)
		if err != nil {
			return fail("add", err)
		}
		return edit(ctx, args[1], cfg, out, "add", func(s *editor.Session) (mutate.Result, error) {
			return s.InsertComponent(coll, document.Tag(args[3]), index)
		})
	case "rm":
		if !need(2, "<dir> and <path>") {
			return 2
		}
		p, err := docpath.Parse(args[2])
		if err != nil {
			return fail("rm", err)
		}
		return edit(ctx, args[1], cfg, out, "rm", func(s *editor.Session) (mutate.Result, error) {
			return s.Remove(p)
		})
	case "mv":
		if !need(3, "<dir>, <path> and <collection>") {
			return 2
		}
		src, err := docpath.Parse(args[2])
		if err != nil {
			return fail("mv", err)
		}
		dst, err := docpath.Parse(args[3])
		if err != nil {
			return fail("mv", err)
		}
		index, err := optIndex(args, 4)
		if err != nil {
			return fail("mv", err)
		}
		return edit(ctx, args[1], cfg, out, "mv", func(s *editor.Session) (mutate.Result, error) {
			return s.Move(src, dst, index)
		})
	case "set-title":
		if !need(2, "<dir> and <title>") {
			return 2
		}
		var subtitle string
		if len(args) > 3 {
			subtitle = args[3]
		}
		return edit(ctx, args[1], cfg, out, "set-title", func(s *editor.Session) (mutate.Result, error) {
			return s.SetTitle(args[2], subtitle)
		})
	case "history":
		if !need(1, "<dir>") {
			return 2
		}
		return withSession(args[1], cfg, out, func(s *editor.Session) error {
			snaps, err := storage.ListSnapshots(ctx, s.Workspace(), s.DocumentID(), 0)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Fprintln(out, "No snapshots.")
			}
			for _, sn := range snaps {
				fmt.Fprintf(out, "%s  %-12s %d bytes\n", sn.TS.Local().Format("2006-01-02 15:04:05"), sn.Label, len(sn.Blob))
			}
			return nil
		})
	case "restore":
		if !need(1, "<dir>") {
			return 2
		}
		return withSession(args[1], cfg, out, func(s *editor.Session) error {
			ok, err := s.Restore(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "No snapshot to restore.")
				return nil
			}
			if err := s.Save(ctx, "restore"); err != nil {
				return err
			}
			fmt.Fprintln(out, "Restored the latest snapshot.")
			return nil
		})
	case "search":
		if !need(2, "<dir> and <text>") {
			return 2
		}
		abs, _ := filepath.Abs(args[1])
		hits, err := storage.Search(ctx, abs, storage.SearchQuery{Text: strings.Join(args[2:], " ")})
		if err != nil {
			return fail("search", err)
		}
		for _, h := range hits {
			fmt.Fprintf(out, "%-40s %-20s %s\n", h.Path, h.Tag, h.Snippet)
		}
		fmt.Fprintf(out, "%d match(es)\n", len(hits))
		return 0
	case "check":
		if !need(1, "<dir>") {
			return 2
		}
		return withSession(args[1], cfg, out, func(s *editor.Session) error {
			if err := mutate.Audit(s.Snapshot()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Card is consistent.")
			return nil
		})
	}
	usage(out)
	return 2
}

func optIndex(args []string, pos int) (int, error) {
	if len(args) <= pos {
		return mutate.Append, nil
	}
	i, err := strconv.Atoi(args[pos])
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", args[pos], err)
	}
	return i, nil
}

// withSession opens the workspace at dir and runs fn. A panic inside fn is
// turned into a crash report and an emergency save of the card.
func withSession(dir string, cfg config.AppConfig, out io.Writer, fn func(*editor.Session) error) int {
	abs, _ := filepath.Abs(dir)
	s, err := editor.Open(abs, editor.OptionsFromConfig(cfg)...)
	if err != nil {
		applog.WithComponent("cli").Error("open failed", slog.Any("err", err))
		fmt.Fprintln(out, "Error:", err)
		return 1
	}
	defer crash.Recover(s.Workspace())
	if err := fn(s); err != nil {
		applog.WithComponent("cli").Error("command failed", slog.Any("err", err))
		fmt.Fprintln(out, "Error:", err)
		return 1
	}
	return 0
}

// edit applies one mutation and saves the workspace.
func edit(ctx context.Context, dir string, cfg config.AppConfig, out io.Writer, label string, fn func(*editor.Session) (mutate.Result, error)) int {
	return withSession(dir, cfg, out, func(s *editor.Session) error {
		res, err := fn(s)
		if err != nil {
			return err
		}
		if res.NoOp {
			fmt.Fprintln(out, "Nothing changed.")
			return nil
		}
		if err := s.Save(ctx, label); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", label, res.Path)
		for _, note := range notes(res) {
			fmt.Fprintln(out, "  "+note)
		}
		return nil
	})
}

func notes(res mutate.Result) []string {
	var out []string
	if res.Recovered {
		out = append(out, "target path was recovered to the nearest compatible container")
	}
	if res.Clamped {
		out = append(out, "an out-of-range index was clamped")
	}
	if res.Redirected {
		out = append(out, "title placed in the header slot")
	}
	if res.Cascaded {
		out = append(out, "the emptied column set was removed")
	}
	return out
}

func printTree(w io.Writer, doc document.Document) {
	if doc.Header != nil {
		fmt.Fprintf(w, "%-44s %-20s %s\n", docpath.Header(), doc.Header.Tag, summary(*doc.Header))
	}
	printNodes(w, doc.Elements, docpath.Body(), 0)
}

func printNodes(w io.Writer, nodes []document.Node, at docpath.Path, depth int) {
	for i, n := range nodes {
		here := at.At(i)
		fmt.Fprintf(w, "%-44s %s%-*s %s\n", here, strings.Repeat("  ", depth), 20-2*depth, n.Tag, summary(n))
		if key := n.Tag.ChildKey(); key != "" {
			children, _ := n.Children(key)
			printNodes(w, children, here.Child(key), depth+1)
		}
	}
}

func summary(n document.Node) string {
	for _, s := range []string{n.Title, n.Content, n.Text, n.Label, n.Name, n.Alt} {
		if s = strings.TrimSpace(s); s != "" {
			if len(s) > 40 {
				s = s[:37] + "..."
			}
			return strconv.Quote(s)
		}
	}
	return ""
}
