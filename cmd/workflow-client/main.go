// Package main provides a CLI client for the engine's HTTP control plane.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		startCmd(os.Args[2:])
	case "status":
		statusCmd(os.Args[2:])
	case "abort":
		controlCmd(os.Args[2:], "abort")
	case "pause":
		controlCmd(os.Args[2:], "pause")
	case "resume":
		controlCmd(os.Args[2:], "resume")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  workflow-client start --workflow <name> [--project-id <id>] [--name <name>] [--theme <theme>] [--addr <url>]
  workflow-client status --id <project-id> --addr <url>
  workflow-client abort --id <project-id> --addr <url>
  workflow-client pause --id <project-id> --addr <url>
  workflow-client resume --id <project-id> --addr <url>
`)
}

// startCmd: POST /api/v1/projects
func startCmd(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	workflow := fs.String("workflow", "", "registered workflow name")
	projectID := fs.String("project-id", "", "override project id (default: store-generated)")
	name := fs.String("name", "", "project name")
	theme := fs.String("theme", "", "project theme")
	targetLen := fs.Int("target-length-min", 0, "target length in minutes")
	addr := fs.String("addr", "http://localhost:8080", "engine server address")
	fs.Parse(args)

	if *workflow == "" {
		fmt.Fprintln(os.Stderr, "error: --workflow is required")
		os.Exit(1)
	}

	req := startProjectRequest{
		ProjectID:       *projectID,
		Workflow:        *workflow,
		Name:            *name,
		Theme:           *theme,
		TargetLengthMin: *targetLen,
	}

	data, err := json.Marshal(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(*addr+"/api/v1/projects", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		printAPIError(body, resp.StatusCode)
		os.Exit(1)
	}

	var project projectResponse
	if err := json.Unmarshal(body, &project); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("project_id=%s status=%s\n", project.ID, project.Status)
}

// statusCmd: GET /api/v1/projects/{id}
func statusCmd(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	id := fs.String("id", "", "project id")
	addr := fs.String("addr", "http://localhost:8080", "engine server address")
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "error: --id is required")
		os.Exit(1)
	}

	resp, err := http.Get(*addr + "/api/v1/projects/" + *id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		printAPIError(body, resp.StatusCode)
		os.Exit(1)
	}

	var project projectResponse
	if err := json.Unmarshal(body, &project); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("project_id=%s status=%s\n", project.ID, project.Status)

	if len(project.Stages) > 0 {
		sort.Slice(project.Stages, func(i, j int) bool { return project.Stages[i].Name < project.Stages[j].Name })
		var parts []string
		for _, s := range project.Stages {
			if s.Error != "" {
				parts = append(parts, fmt.Sprintf("%s=%s(%s)", s.Name, s.Status, s.Error))
			} else {
				parts = append(parts, fmt.Sprintf("%s=%s", s.Name, s.Status))
			}
		}
		fmt.Printf("stages: %s\n", strings.Join(parts, ", "))
	}

	if project.Error != nil {
		fmt.Printf("error: [%s] %s\n", project.Error.Code, project.Error.Message)
	}
}

// controlCmd issues POST /api/v1/projects/{id}/{action}.
func controlCmd(args []string, action string) {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	id := fs.String("id", "", "project id")
	addr := fs.String("addr", "http://localhost:8080", "engine server address")
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "error: --id is required")
		os.Exit(1)
	}

	resp, err := http.Post(*addr+"/api/v1/projects/"+*id+"/"+action, "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		printAPIError(body, resp.StatusCode)
		os.Exit(1)
	}

	fmt.Printf("project_id=%s action=%s accepted\n", *id, action)
}

func printAPIError(body []byte, statusCode int) {
	var errResp errorDTO
	if json.Unmarshal(body, &errResp) == nil && errResp.Code != "" {
		fmt.Fprintf(os.Stderr, "error: [%s] %s\n", errResp.Code, errResp.Message)
	} else {
		fmt.Fprintf(os.Stderr, "error: HTTP %d: %s\n", statusCode, string(body))
	}
}

// DTOs mirroring api.StartProjectRequest / api.ProjectResponse (minimal
// fields the client needs).
type startProjectRequest struct {
	ProjectID       string `json:"project_id,omitempty"`
	Workflow        string `json:"workflow"`
	Name            string `json:"name,omitempty"`
	Theme           string `json:"theme,omitempty"`
	TargetLengthMin int    `json:"target_length_min,omitempty"`
}

type projectResponse struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Stages []stageStatusDTO `json:"stages,omitempty"`
	Error  *errorDTO        `json:"error,omitempty"`
}

type stageStatusDTO struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type errorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
