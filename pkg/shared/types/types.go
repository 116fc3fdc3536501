// Package types holds the data model shared across forge's components:
// Session, Task, Agent, FileStep, ValidationResult, CompilationDiagnostic
// and CircuitBreakerEntry, as specified in §3. The incremental context
// lives in pkg/incremental as Context.
package types

import "time"

// PhaseName enumerates the six fixed phases of the orchestrator (§4.1).
type PhaseName string

const (
	PhaseAnalysis     PhaseName = "analysis"
	PhaseOptimization PhaseName = "optimization"
	PhaseGeneration   PhaseName = "generation"
	PhaseQuality      PhaseName = "quality"
	PhaseCompilation  PhaseName = "compilation"
	PhaseAssessment   PhaseName = "assessment"
)

// PhaseWeights sums to 100 (invariant I3).
var PhaseWeights = map[PhaseName]int{
	PhaseAnalysis:     15,
	PhaseOptimization: 10,
	PhaseGeneration:   35,
	PhaseQuality:      15,
	PhaseCompilation:  20,
	PhaseAssessment:   5,
}

// PhaseOrder is the strict sequencing of phases within a session.
var PhaseOrder = []PhaseName{
	PhaseAnalysis, PhaseOptimization, PhaseGeneration, PhaseQuality, PhaseCompilation, PhaseAssessment,
}

type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseActive    PhaseStatus = "active"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

// PhaseState tracks one phase's lifecycle within a Session.
type PhaseState struct {
	Name      PhaseName
	Status    PhaseStatus
	Progress  int
	StartedAt time.Time
	EndedAt   time.Time
}

// Session is the end-to-end unit of a creation run (§3).
type Session struct {
	ID             string
	PluginName     string
	UserID         string
	OriginalPrompt string
	RefinedPrompt  string
	StartedAt      time.Time
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Phases         map[PhaseName]*PhaseState
	Overall        int
	EstimatedDone  time.Time
	AgentsUsed     []string
	Events         []TaskEvent
	Cancelled      bool
}

// TaskType enumerates task categories (§3).
type TaskType string

const (
	TaskCreation     TaskType = "creation"
	TaskValidation   TaskType = "validation"
	TaskCompilation  TaskType = "compilation"
	TaskOptimization TaskType = "optimization"
	TaskRepair       TaskType = "repair"
)

type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// QuickActions is the fixed set of actions that do not mark their agent
// unavailable, so fan-out within a phase can run concurrently (§4.2).
var QuickActions = map[string]bool{
	"classify_intent":          true,
	"refine_prompt":            true,
	"extract_requirements":     true,
	"optimize_prompt":          true,
	"enhance_prompt":           true,
	"validate_generated_code":  true,
	"final_quality_assessment": true,
}

// Task is a unit of dispatchable work owned by the scheduler (§3).
type Task struct {
	ID              string
	Type            TaskType
	Priority        TaskPriority
	Action          string
	Data            map[string]interface{}
	RetryCount      int
	MaxRetries      int
	Status          TaskStatus
	StartTime       time.Time
	EndTime         time.Time
	AssignedAgentID string
	Result          interface{}
	Error           string
}

// IsQuick reports whether this task's action belongs to the quick-task set.
func (t *Task) IsQuick() bool {
	return QuickActions[t.Action]
}

// AgentRole enumerates the four agent roles (§3).
type AgentRole string

const (
	RoleSpecialist AgentRole = "specialist"
	RoleGeneralist AgentRole = "generalist"
	RoleValidator  AgentRole = "validator"
	RoleOptimizer  AgentRole = "optimizer"
)

// AgentPerformance tracks running success/latency stats (§3).
// Invariant: TotalTasks == Successes + Errors; SuccessRate in [0,1].
type AgentPerformance struct {
	SuccessRate   float64
	AverageTimeMs float64
	TotalTasks    int
	Successes     int
	Errors        int
}

// Agent is a worker identity with a capability set (§3, glossary).
type Agent struct {
	ID            string
	Name          string
	Role          AgentRole
	Capabilities  map[string]bool
	Available     bool
	CurrentTaskID string
	Performance   AgentPerformance
}

// HasCapability reports whether the agent holds the named capability.
func (a *Agent) HasCapability(capability string) bool {
	return a.Capabilities[capability]
}

// FileType enumerates the kinds of files the incremental planner emits (§3).
type FileType string

const (
	FileMainClass        FileType = "main_class"
	FileConfig           FileType = "config"
	FileCommand          FileType = "command"
	FileListener         FileType = "listener"
	FileUtility          FileType = "utility"
	FileResource         FileType = "resource"
	FileBuildConfig      FileType = "build_config"
	FilePluginDescriptor FileType = "plugin_descriptor"
)

type FileStepStatus string

const (
	StepPending    FileStepStatus = "pending"
	StepCreating   FileStepStatus = "creating"
	StepValidating FileStepStatus = "validating"
	StepCompleted  FileStepStatus = "completed"
	StepFailed     FileStepStatus = "failed"
)

// FileStep is one planned file in the incremental pipeline (§3).
type FileStep struct {
	ID             string
	Order          int
	FileName       string
	FileType       FileType
	Description    string
	Dependencies   []string
	Priority       int
	Status         FileStepStatus
	Content        string
	LastValidation *ValidationResult
	RetryCount     int
	MaxRetries     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidationResult is the outcome of the cross-file validator (§3).
type ValidationResult struct {
	IsValid          bool
	Score            int
	Issues           []string
	Suggestions      []string
	ContextualErrors []string
}

// DiagnosticType enumerates compile diagnostic categories (§3).
type DiagnosticType string

const (
	DiagSyntax         DiagnosticType = "syntax"
	DiagSemantic       DiagnosticType = "semantic"
	DiagDependency     DiagnosticType = "dependency"
	DiagPluginSpecific DiagnosticType = "plugin-specific"
	DiagMaven          DiagnosticType = "maven"
	DiagUnknown        DiagnosticType = "unknown"
)

// CompilationDiagnostic is one parsed build diagnostic (§3).
type CompilationDiagnostic struct {
	Type       DiagnosticType
	File       string
	Line       int
	Column     int
	Message    string
	Suggestion string
}

// BreakerState enumerates circuit breaker states (§3).
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// CircuitBreakerEntry is the per-operation breaker state (§3).
type CircuitBreakerEntry struct {
	Operation           string
	State               BreakerState
	ConsecutiveFailures int
	LastFailureAt       time.Time
}

// TaskEvent is the agent.task envelope (§6).
type TaskEvent struct {
	SessionID string
	TaskID    string
	Type      TaskType
	Action    string
	Status    TaskStatus
	AgentID   string
	Progress  int
	Message   string
	Error     string
	Result    interface{}
	Timestamp time.Time
}

// ProgressEvent is the agent.progress envelope (§6).
type ProgressEvent struct {
	SessionID            string
	Phase                PhaseName
	Step                 string
	Progress             int
	Message              string
	EstimatedRemainingMs int64
	Details              map[string]interface{}
	Timestamp            time.Time
}

// CreationResult is the contract returned by createPlugin (§4.1).
type CreationResult struct {
	SessionID    string
	Success      bool
	PluginPath   string
	JarPath      string
	QualityScore int
	Issues       []string
	Suggestions  []string
	TimeTakenMs  int64
	AgentsUsed   []string
	RetryCount   int
}
