package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// extractRequest mirrors the Skimmer API request model.
type extractRequest struct {
	URL           string `json:"url"`
	Mode          string `json:"mode,omitempty"`
	MaxAgeMs      int64  `json:"max_age_ms,omitempty"`
	ForceHeadless bool   `json:"force_headless,omitempty"`
}

// extractResponse mirrors the Skimmer API response model.
type extractResponse struct {
	Success  bool   `json:"success"`
	Decision string `json:"decision"`
	CacheHit bool   `json:"cache_hit"`
	Document *struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Byline      string `json:"byline"`
		SiteName    string `json:"site_name"`
		Markdown    string `json:"markdown"`
		Text        string `json:"text"`
		WordCount   int    `json:"word_count"`
		ExtractedBy string `json:"extracted_by"`
	} `json:"document"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("SKIMMER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SKIMMER_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SKIMMER_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"skimmer",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	extractPageTool := mcp.NewTool("extract_page",
		mcp.WithDescription("Extract the readable content of a web page as markdown. Automatically decides whether plain fetching is enough or the page needs headless rendering."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to extract"),
		),
		mcp.WithString("mode",
			mcp.Description("Extraction mode: 'article' (default, main readable content), 'full' (whole body plus links and media), or 'metadata' (title/description only)"),
			mcp.Enum("article", "full", "metadata"),
		),
		mcp.WithNumber("max_age_ms",
			mcp.Description("Accept a cached result no older than this many milliseconds (default: 0, always fresh)"),
		),
		mcp.WithBoolean("force_headless",
			mcp.Description("Always render in a headless browser instead of letting the gate decide"),
		),
	)
	s.AddTool(extractPageTool, handleExtractPage(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleExtractPage(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 150 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := extractRequest{
			URL:           url,
			Mode:          request.GetString("mode", ""),
			MaxAgeMs:      int64(request.GetFloat("max_age_ms", 0)),
			ForceHeadless: request.GetBool("force_headless", false),
		}

		body, err := json.Marshal(reqBody)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/extract", bytes.NewReader(body))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-API-Key", apiKey)

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var extResp extractResponse
		if err := json.Unmarshal(respBody, &extResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !extResp.Success {
			errMsg := "extraction failed"
			if extResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", extResp.Error.Code, extResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}
		if extResp.Document == nil {
			return mcp.NewToolResultError("no document in response"), nil
		}

		doc := extResp.Document
		result := fmt.Sprintf("Title: %s\nSource: %s\n", doc.Title, doc.URL)
		if doc.Byline != "" {
			result += fmt.Sprintf("Author: %s\n", doc.Byline)
		}
		result += fmt.Sprintf("Strategy: %s", extResp.Decision)
		if extResp.CacheHit {
			result += " (cached)"
		}
		result += "\n\n"
		if doc.Markdown != "" {
			result += doc.Markdown
		} else {
			result += doc.Text
		}
		result += fmt.Sprintf("\n\n---\n%d words via %s", doc.WordCount, doc.ExtractedBy)

		return mcp.NewToolResultText(result), nil
	}
}
