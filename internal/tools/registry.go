package tools

import (
	"github.com/pmnowak/ollama-code/internal/engine"
	"github.com/pmnowak/ollama-code/internal/tools/editing"
	"github.com/pmnowak/ollama-code/internal/tools/execution"
	"github.com/pmnowak/ollama-code/internal/tools/filesystem"
	"github.com/pmnowak/ollama-code/internal/tools/reasoning"
	"github.com/pmnowak/ollama-code/internal/tools/search"
)

// NewToolRegistry builds the engine.ToolRegistry for the given ToolSet,
// with every tool rooted at repoRoot.
func NewToolRegistry(repoRoot string, set engine.ToolSet) (engine.ToolRegistry, error) {
	reg := make(engine.ToolRegistry)

	if set.Filesystem {
		reg["read_file"] = filesystem.NewReadFileTool(repoRoot)
		reg["list_files"] = filesystem.NewListFilesTool(repoRoot)
		reg["write_file"] = filesystem.NewWriteFileTool(repoRoot)
		reg["delete_file"] = filesystem.NewDeleteFileTool(repoRoot)
	}

	if set.Search {
		reg["grep"] = search.NewGrepTool(repoRoot)
	}

	if set.Execution {
		reg["run_cmd"] = execution.NewRunCmdTool(repoRoot)
	}

	if set.Editing {
		reg["search_replace"] = editing.NewSearchReplaceTool(repoRoot)
	}

	if set.Meta {
		reg["think"] = reasoning.NewThinkTool()
		reg["respond"] = reasoning.NewRespondTool()
	}

	return reg, nil
}
