package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lithammer/shortuuid/v4"
	"github.com/spf13/cobra"

	"github.com/hrygo/decade/server/retrieval"
	"github.com/hrygo/decade/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the incremental indexer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		srv, err := newServer(ctx)
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			srv.Shutdown(ctx)
			return err
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		sig := <-c
		slog.Info("shutting down", "signal", sig.String())
		srv.Shutdown(context.Background())
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search and indexing as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, _ []string) error {
		srv, err := newServer(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = srv.Store.Close() }()

		mcpServer, err := srv.MCPServer(cmd.Context())
		if err != nil {
			return err
		}
		return mcpServer.Serve(cmd.Context())
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [memory-id]",
	Short: "Reindex every memory record, or one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		srv, err := newServer(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Store.Close() }()

		indexer, err := srv.Indexer(ctx)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			report, err := indexer.IndexOne(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		}
		report, err := indexer.IndexAll(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		k, _ := cmd.Flags().GetInt("k")
		rawMode, _ := cmd.Flags().GetString("mode")
		mode, err := retrieval.ParseMode(rawMode)
		if err != nil {
			return err
		}

		srv, err := newServer(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Store.Close() }()

		orchestrator, err := srv.Orchestrator(ctx)
		if err != nil {
			return err
		}
		hits, err := orchestrator.Search(ctx, strings.Join(args, " "), k, mode)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No memories found.")
			return nil
		}
		for i, h := range hits {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s  score=%.3f  %s %s\n   %s\n",
				i+1, h.ID, h.Score, h.Metadata.Date, h.Metadata.Location, h.Text)
		}
		return nil
	},
}

// importRecord is one element of an import file.
type importRecord struct {
	ID        string       `json:"id"`
	Date      string       `json:"date"`
	Location  string       `json:"location"`
	Weather   string       `json:"weather"`
	Title     string       `json:"title"`
	Caption   string       `json:"caption"`
	Note      string       `json:"note"`
	Faces     []store.Face `json:"faces"`
	Mood      string       `json:"mood"`
	MediaType string       `json:"media_type"`
	ImageURL  string       `json:"image_url"`
}

var importCmd = &cobra.Command{
	Use:   "import <records.json>",
	Short: "Import memory records from a JSON array and index them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		records, err := readImportFile(args[0])
		if err != nil {
			return err
		}

		srv, err := newServer(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Store.Close() }()

		for _, r := range records {
			if _, err := srv.Store.UpsertMemoryRecord(ctx, r); err != nil {
				return fmt.Errorf("import %s: %w", r.ID, err)
			}
		}
		slog.Info("memory records imported", "count", len(records))

		indexer, err := srv.Indexer(ctx)
		if err != nil {
			return err
		}
		report, err := indexer.IndexAll(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), p)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		schemaVersion, err := s.GetCurrentSchemaVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "database %s is at schema %s\n", p.Driver, schemaVersion)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntP("k", "k", retrieval.DefaultK, "number of results")
	searchCmd.Flags().String("mode", string(retrieval.ModeEnsemble), "backends to query: local, remote or ensemble")
}

// readImportFile decodes records. A record without an id gets a name based
// short uuid of its content, so importing the same file again updates the
// same records.
func readImportFile(path string) ([]*store.MemoryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []importRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	records := make([]*store.MemoryRecord, 0, len(raw))
	for i, r := range raw {
		if r.MediaType == "" {
			return nil, fmt.Errorf("record %d: media_type is required", i)
		}
		if r.ID == "" {
			r.ID = contentID(r)
		}
		records = append(records, &store.MemoryRecord{
			ID:        r.ID,
			Date:      r.Date,
			Location:  r.Location,
			Weather:   r.Weather,
			Title:     r.Title,
			Caption:   r.Caption,
			Note:      r.Note,
			Faces:     r.Faces,
			Mood:      r.Mood,
			MediaType: r.MediaType,
			ImageURL:  r.ImageURL,
		})
	}
	return records, nil
}

func contentID(r importRecord) string {
	name := strings.Join([]string{"memory", r.MediaType, r.Date, r.Location, r.ImageURL, r.Title, r.Caption}, "\x1f")
	return shortuuid.NewWithNamespace(name)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
