package engine

// ToolSet specifies which categories of tools to include in the registry.
type ToolSet struct {
	Filesystem bool // read_file, list_files, write_file, delete_file
	Search     bool // grep
	Execution  bool // run_cmd
	Editing    bool // search_replace
	Meta       bool // think, respond
}

// FullToolSet enables everything the interactive agent uses.
func FullToolSet() ToolSet {
	return ToolSet{Filesystem: true, Search: true, Execution: true, Editing: true, Meta: true}
}
