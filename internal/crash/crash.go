/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a crash report plus an emergency save of
// the open card.
package crash

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	applog "cardbuilder/internal/log"
	"cardbuilder/internal/storage"
	"cardbuilder/internal/version"
)

// exitFn is swapped in tests so that Recover does not end the test binary.
var exitFn = os.Exit

// Recover must be deferred directly:
//
//	defer crash.Recover(wh)
//
// On a panic it logs the stack, writes a crash report next to the
// workspace backups (or in the temp dir without a workspace), autosaves the
// in-memory card and exits with code 2.
func Recover(wh *storage.WorkspaceHandle) {
	if r := recover(); r != nil {
		handle(wh, r, debug.Stack())
	}
}

func handle(wh *storage.WorkspaceHandle, panicVal any, stack []byte) {
	l := applog.WithComponent("crash")
	l.Error("panic recovered", slog.Any("panic", panicVal), slog.String("stack", string(stack)))

	reportPath, err := writeReport(wh, panicVal, stack)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err), slog.String("path", reportPath))
	}
	if wh != nil {
		if path, err := storage.AutosaveCrashSnapshot(wh); err != nil {
			l.Error("crash autosave failed", slog.Any("err", err))
		} else {
			l.Info("crash autosave written", slog.String("path", path))
		}
	}
	fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\nVersion: %s\nOS/Arch: %s/%s\n",
		reportPath, version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func reportDir(wh *storage.WorkspaceHandle) string {
	if wh == nil || wh.Root == "" {
		return os.TempDir()
	}
	dir := filepath.Join(wh.Root, storage.BackupsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.TempDir()
	}
	return dir
}

func writeReport(wh *storage.WorkspaceHandle, panicVal any, stack []byte) (string, error) {
	now := time.Now()
	path := filepath.Join(reportDir(wh), "crash-"+now.Format("20060102-150405")+".log")

	var b strings.Builder
	line := func(k, v string) { b.WriteString(k + ": " + v + "\n") }
	b.WriteString("Card Builder Crash Report\n")
	line("Timestamp", now.Format(time.RFC3339))
	line("Version", version.String())
	line("OS/Arch", runtime.GOOS+"/"+runtime.GOARCH)
	if wh != nil {
		line("Workspace", wh.Root)
		line("Manifest", wh.ManifestPath)
		card := wh.Manifest.Card
		line("Card", fmt.Sprintf("%s (%d root nodes)", wh.Manifest.ID, len(card.Elements)))
		if card.Header != nil {
			line("Title", card.Header.Title)
		}
	}
	fmt.Fprintf(&b, "\nPanic: %v\n\nStack:\n%s\n", panicVal, stack)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return path, err
	}
	return path, nil
}
