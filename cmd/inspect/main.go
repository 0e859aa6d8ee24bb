// inspect dumps study state from the backend database: enrolled
// participants, their stage bookkeeping, and recent classification
// decisions.
package main

// #region imports
import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/scuhci/focusmode-backend/internal/audit"
	"github.com/scuhci/focusmode-backend/internal/participant"
)

// #endregion

// #region main

func main() {
	dbPath := flag.String("db", "", "path to focusmode.db")
	id := flag.String("id", "", "show one participant in detail")
	last := flag.Int("last", 20, "show N most recent classifications (with --id)")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/focusmode.db [--id participant] [--last N] [--json]")
		os.Exit(2)
	}

	store, err := participant.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if *id != "" {
		if err := runDetailMode(ctx, store, *id, *last, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := runListMode(ctx, store, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

func runListMode(ctx context.Context, store *participant.Store, jsonOut bool) error {
	ids, err := store.ListIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "no participants found")
		return nil
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(ids)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detail struct {
	Record          recordView    `json:"record"`
	Classifications []audit.Entry `json:"classifications"`
}

type recordView struct {
	ParticipantID   string         `json:"participant_id"`
	StageSequence   []int          `json:"stage_sequence"`
	StageStarts     map[int]string `json:"stage_start_times"`
	CurrentStage    int            `json:"current_stage"`
	CompletedStages []int          `json:"completed_stages"`
	LastActiveTime  string         `json:"last_active_time"`
	FocusCategories []string       `json:"focus_categories"`
	StageWatchTimes map[int]int64  `json:"stage_watch_times"`
}

func runDetailMode(ctx context.Context, store *participant.Store, id string, last int, jsonOut bool) error {
	rec, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	log, err := audit.NewLog(store.DB())
	if err != nil {
		return err
	}
	decisions, err := log.List(ctx, id, last)
	if err != nil {
		return err
	}

	starts := make(map[int]string, len(rec.StageStartTimes))
	for stage, t := range rec.StageStartTimes {
		starts[stage] = t.Format(time.RFC3339)
	}
	view := detail{
		Record: recordView{
			ParticipantID:   rec.ParticipantID,
			StageSequence:   rec.StageSequence,
			StageStarts:     starts,
			CurrentStage:    rec.CurrentStage,
			CompletedStages: rec.CompletedStages,
			LastActiveTime:  rec.LastActiveTime.Format(time.RFC3339),
			FocusCategories: rec.FocusCategories,
			StageWatchTimes: rec.StageWatchTimes,
		},
		Classifications: decisions,
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	fmt.Printf("participant %s\n", rec.ParticipantID)
	fmt.Printf("  sequence:  %v\n", rec.StageSequence)
	fmt.Printf("  current:   %d  completed: %v\n", rec.CurrentStage, rec.CompletedStages)
	fmt.Printf("  last seen: %s\n", rec.LastActiveTime.Format(time.RFC3339))
	for _, stage := range rec.StageSequence {
		fmt.Printf("  stage %d starts %s  watch %ds\n",
			stage, rec.StageStartTimes[stage].Format(time.RFC3339), rec.StageWatchTimes[stage])
	}
	fmt.Printf("recent classifications (%d):\n", len(decisions))
	for _, d := range decisions {
		marker := ""
		if d.Fallback {
			marker = " [fallback]"
		}
		fmt.Printf("  %s  %s  category=%s confidence=%d%%%s\n",
			d.CreatedAt.Format(time.RFC3339), d.EntryID, d.Category, d.Confidence, marker)
	}
	return nil
}

// #endregion detail-mode
