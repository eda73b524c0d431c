// Copyright 2025 Kodi Sync Queue contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("Kodi Sync Queue - Library Delta Sync Server")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Answers \"what changed in my visible library since T?\" with one consolidated")
	fmt.Println("delta (items added/removed/updated plus per-user metadata changes) so Kodi")
	fmt.Println("clients can reconcile a local cache without re-downloading the full catalog.")
	fmt.Println()
	fmt.Println("Available example:")
	fmt.Println()
	fmt.Println("  Queue server (examples/queueserver/)")
	fmt.Println("  A complete delta sync server over PostgreSQL or embedded SQLite")
	fmt.Println("  Features: JWT auth, concurrent category queries, retention pruning")
	fmt.Println("  Run: cd examples/queueserver && go run .")
	fmt.Println()
}
