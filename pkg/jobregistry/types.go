package jobregistry

// SchemaVersion is the lock file record version written by this package.
//
// NOTE: The record layout is part of the stable on-disk contract. Readers
// reject records without a version or with a newer one.
const SchemaVersion = 1

// Resource usage keys populated by Store.Read.
const (
	ResourceWalltime = "walltime"
	ResourceCPUTime  = "cput"
	ResourceMem      = "mem"
	ResourceVMem     = "vmem"
	ResourceThreads  = "threads"
)

// Descriptor is the canonical record of one job.
//
// A descriptor is created before any process exists, persisted once a pid is
// known, and refreshed only by re-reading it from its lock file.
type Descriptor struct {
	JobID        string   `json:"job_id"`
	PID          int      `json:"pid,omitempty"`
	Name         string   `json:"name,omitempty"`
	Owner        string   `json:"owner,omitempty"`
	StartTime    int64    `json:"start_time"`
	Server       string   `json:"server,omitempty"`
	ExecHost     string   `json:"exec_host,omitempty"`
	ErrorPath    string   `json:"error_path,omitempty"`
	OutputPath   string   `json:"output_path,omitempty"`
	JoinPath     string   `json:"join_path,omitempty"`
	MailPoints   string   `json:"mail_points,omitempty"`
	MailUsers    []string `json:"mail_users,omitempty"`
	VariableList string   `json:"variable_list,omitempty"`

	// ExitStatus is set once the job process has exited normally.
	ExitStatus *int `json:"exit_status,omitempty"`

	// ResourcesUsed is empty at creation and filled in by Store.Read.
	ResourcesUsed map[string]string `json:"resources_used,omitempty"`

	// Lockfile is the path the descriptor was last persisted to or read from.
	Lockfile string `json:"lockfile,omitempty"`
}

// NewDescriptor returns a descriptor with an empty resource map.
func NewDescriptor(jobID string) *Descriptor {
	return &Descriptor{JobID: jobID, ResourcesUsed: map[string]string{}}
}

// lockRecord is the JSON document stored in a lock file.
type lockRecord struct {
	SchemaVersion int        `json:"schema_version"`
	Job           Descriptor `json:"job"`
}
