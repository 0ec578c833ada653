package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Request and response types matching internal/http/server.go.

type DocumentRequest struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type UpsertRequest struct {
	Documents []DocumentRequest `json:"documents"`
}

type UpsertResponse struct {
	Count int `json:"count"`
}

type SearchRequest struct {
	Query             string   `json:"query"`
	K                 int      `json:"k"`
	Threshold         *float32 `json:"threshold,omitempty"`
	IncludeEmbeddings bool     `json:"include_embeddings,omitempty"`
	Rerank            bool     `json:"rerank,omitempty"`
	VectorWeight      float32  `json:"vector_weight,omitempty"`
	KeywordWeight     float32  `json:"keyword_weight,omitempty"`
	KeywordMode       string   `json:"keyword_mode,omitempty"`
}

type SearchResult struct {
	ID      string                 `json:"id"`
	Content string                 `json:"content"`
	Score   float32                `json:"score"`
	Meta    map[string]interface{} `json:"metadata,omitempty"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

type ImportRequest struct {
	Snapshot            json.RawMessage `json:"snapshot"`
	IgnoreModelMismatch bool            `json:"ignore_model_mismatch,omitempty"`
}

type StatsResponse struct {
	DocumentCount int    `json:"document_count"`
	ModelID       string `json:"model_id"`
	Loaded        bool   `json:"loaded"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check vecstore server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp HealthResponse
		if err := doRequest(http.MethodGet, "/health", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("Server status: %s\n", resp.Status)
		return nil
	},
}

var (
	addID       string
	addMetadata string
)

var addCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Add a document to the store",
	Long: `Add a document to the store. Content is taken from the argument, or
from stdin when the argument is "-" or omitted.

Examples:
  # Add with an explicit id
  vecstore add --id doc-1 "Go is a statically typed language"

  # Add from stdin with metadata
  cat notes.txt | vecstore add --metadata '{"source":"notes"}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var content string
		if len(args) == 0 || args[0] == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading from stdin: %w", err)
			}
			content = string(data)
		} else {
			content = args[0]
		}
		if content == "" {
			return fmt.Errorf("no content to add")
		}

		doc := DocumentRequest{ID: addID, Content: content}
		if addMetadata != "" {
			if err := json.Unmarshal([]byte(addMetadata), &doc.Metadata); err != nil {
				return fmt.Errorf("parsing metadata: %w", err)
			}
		}

		var resp UpsertResponse
		if err := doRequest(http.MethodPost, "/api/v1/documents", UpsertRequest{Documents: []DocumentRequest{doc}}, &resp); err != nil {
			return err
		}
		fmt.Printf("Stored %d document(s)\n", resp.Count)
		return nil
	},
}

var (
	searchK         int
	searchThreshold float32
	searchHybrid    bool
	searchVecWeight float32
	searchKwWeight  float32
	searchKwMode    string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the store by semantic similarity",
	Long: `Search the store by semantic similarity, optionally blended with
keyword scoring.

Examples:
  # Semantic search
  vecstore search "typed languages" --k 5

  # Hybrid search weighted toward keywords
  vecstore search "typed languages" --hybrid --keyword-weight 0.6 --vector-weight 0.4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := SearchRequest{
			Query:         args[0],
			K:             searchK,
			VectorWeight:  searchVecWeight,
			KeywordWeight: searchKwWeight,
			KeywordMode:   searchKwMode,
		}
		if cmd.Flags().Changed("threshold") {
			req.Threshold = &searchThreshold
		}

		path := "/api/v1/search"
		if searchHybrid {
			path = "/api/v1/hybrid-search"
		}

		var resp SearchResponse
		if err := doRequest(http.MethodPost, path, req, &resp); err != nil {
			return err
		}

		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp.Results)
		}
		if len(resp.Results) == 0 {
			fmt.Println("No results")
			return nil
		}
		for i, r := range resp.Results {
			fmt.Printf("%d. [%.4f] %s\n   %s\n", i+1, r.Score, r.ID, r.Content)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export a snapshot of all documents",
	Long: `Export a snapshot of all documents with their embeddings. The snapshot
is written to the given file, or stdout when omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var snapshot json.RawMessage
		if err := doRequest(http.MethodGet, "/api/v1/export", nil, &snapshot); err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := json.Indent(&buf, snapshot, "", "  "); err != nil {
			return fmt.Errorf("formatting snapshot: %w", err)
		}
		buf.WriteByte('\n')

		if len(args) == 0 {
			_, err := os.Stdout.Write(buf.Bytes())
			return err
		}
		if err := os.WriteFile(args[0], buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		fmt.Printf("Snapshot written to %s\n", args[0])
		return nil
	},
}

var importIgnoreMismatch bool

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a previously exported snapshot",
	Long: `Import a previously exported snapshot from the given file, or stdin
when the argument is "-" or omitted. Documents are merged by id without
re-embedding.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 0 || args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading from stdin: %w", err)
			}
		} else {
			data, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading snapshot file: %w", err)
			}
		}
		if !json.Valid(data) {
			return fmt.Errorf("snapshot is not valid JSON")
		}

		var resp UpsertResponse
		req := ImportRequest{Snapshot: data, IgnoreModelMismatch: importIgnoreMismatch}
		if err := doRequest(http.MethodPost, "/api/v1/import", req, &resp); err != nil {
			return err
		}
		fmt.Printf("Imported %d document(s)\n", resp.Count)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp StatsResponse
		if err := doRequest(http.MethodGet, "/api/v1/stats", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("Documents: %d\n", resp.DocumentCount)
		fmt.Printf("Model:     %s\n", resp.ModelID)
		fmt.Printf("Loaded:    %t\n", resp.Loaded)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addID, "id", "", "document id (generated when empty)")
	addCmd.Flags().StringVar(&addMetadata, "metadata", "", "document metadata as a JSON object")

	searchCmd.Flags().IntVar(&searchK, "k", 10, "maximum number of results")
	searchCmd.Flags().Float32Var(&searchThreshold, "threshold", 0, "minimum similarity score")
	searchCmd.Flags().BoolVar(&searchHybrid, "hybrid", false, "blend semantic and keyword scores")
	searchCmd.Flags().Float32Var(&searchVecWeight, "vector-weight", 0, "hybrid vector weight")
	searchCmd.Flags().Float32Var(&searchKwWeight, "keyword-weight", 0, "hybrid keyword weight")
	searchCmd.Flags().StringVar(&searchKwMode, "keyword-mode", "", "keyword matching mode (exact, prefix, fuzzy)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")

	importCmd.Flags().BoolVar(&importIgnoreMismatch, "ignore-model-mismatch", false, "import even when the snapshot was built with a different model")
}

// doRequest sends a JSON request to the server and decodes the JSON
// response into out when out is non-nil.
func doRequest(method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := serverURL + path
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
