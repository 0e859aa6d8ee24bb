// seed-allowlist loads participant IDs into the Redis allow-list, one
// ID per line from a file or stdin.
package main

// #region imports
import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/scuhci/focusmode-backend/internal/allowlist"
	"github.com/scuhci/focusmode-backend/internal/config"
)

// #endregion

// #region main
func main() {
	file := flag.String("file", "", "file with one participant ID per line (default: stdin)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	in := os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", *file, err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	var ids []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read ids: %v\n", err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "no participant IDs to load")
		os.Exit(1)
	}

	store, err := allowlist.NewStore(cfg.RedisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "allowlist: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Add(ctx, ids...); err != nil {
		fmt.Fprintf(os.Stderr, "add: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("loaded %d participant IDs\n", len(ids))
}

// #endregion main
