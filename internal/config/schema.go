// Package config loads simulation files and compiles them into workflow
// trees, a runner configuration and an actor pool.
package config

// File is the root of a simulation file.
//
// Example YAML:
//
//	name: checkout
//	settings:
//	  baseUrl: http://localhost:8080
//	  timeout: 10s
//	simulation:
//	  duration: 1m
//	  throttle: {rps: 20, window: 1s}
//	actors:
//	  anonymous: 4
//	workflows:
//	  - name: browse
//	    steps:
//	      - http: {name: home, url: "/"}
//	      - ensure: {status: {step: home, equals: 200}}
type File struct {
	// Name of the simulation (for reporting)
	Name string `json:"name" yaml:"name" validate:"required"`

	// Description of the simulation (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Settings   Settings   `json:"settings,omitempty" yaml:"settings,omitempty"`
	Simulation Simulation `json:"simulation" yaml:"simulation"`
	Actors     Actors     `json:"actors" yaml:"actors"`

	Workflows []Workflow `json:"workflows" yaml:"workflows" validate:"required,min=1,dive"`
}

// Settings holds transport and logging settings shared by all workflows.
type Settings struct {
	// BaseURL prefixes relative request URLs
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty" validate:"omitempty,url"`

	// Timeout is the per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"`

	// LogLevel is one of debug, info, warn, error, disabled
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error disabled"`

	MaxConnectionsPerHost int  `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty" validate:"gte=0"`
	MaxIdleConnsPerHost   int  `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty" validate:"gte=0"`
	InsecureSkipVerify    bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Variables are available to every {{placeholder}}
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Simulation controls the pairing stream.
type Simulation struct {
	// Parallelism is the number of concurrent pairings (default: one per actor)
	Parallelism int `json:"parallelism,omitempty" yaml:"parallelism,omitempty" validate:"gte=0"`

	// Duration bounds the run by wall-clock time
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty" validate:"gte=0"`

	// MaxExecutions bounds the run by the number of pairings
	MaxExecutions int64 `json:"maxExecutions,omitempty" yaml:"maxExecutions,omitempty" validate:"gte=0"`

	RampUp   *RampUp   `json:"rampUp,omitempty" yaml:"rampUp,omitempty"`
	Throttle *Throttle `json:"throttle,omitempty" yaml:"throttle,omitempty"`

	// Drain is graceful or abandon
	Drain string `json:"drain,omitempty" yaml:"drain,omitempty" validate:"omitempty,oneof=graceful abandon"`

	// GracefulStop is how long in-flight pairings may take to finish
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty" validate:"gte=0"`

	ActorPollInterval Duration `json:"actorPollInterval,omitempty" yaml:"actorPollInterval,omitempty" validate:"gte=0"`
	ActorPollAttempts int      `json:"actorPollAttempts,omitempty" yaml:"actorPollAttempts,omitempty" validate:"gte=0"`
}

// RampUp increases the pairing rate linearly.
type RampUp struct {
	StartRPS  float64  `json:"startRps" yaml:"startRps" validate:"gt=0"`
	TargetRPS float64  `json:"targetRps" yaml:"targetRps" validate:"gt=0"`
	Duration  Duration `json:"duration" yaml:"duration" validate:"gt=0"`
}

// Throttle caps the pairing rate.
type Throttle struct {
	RPS    int      `json:"rps" yaml:"rps" validate:"gt=0"`
	Window Duration `json:"window,omitempty" yaml:"window,omitempty" validate:"gte=0"`
}

// Actors lists the identities the run uses.
type Actors struct {
	// Anonymous adds credential-less actors with generated IDs
	Anonymous int `json:"anonymous,omitempty" yaml:"anonymous,omitempty" validate:"gte=0"`

	List []ActorConfig `json:"list,omitempty" yaml:"list,omitempty" validate:"dive"`
}

// ActorConfig is one configured actor.
type ActorConfig struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty" validate:"required_with=Password"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
}

// Workflow is a named list of steps.
type Workflow struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	Steps []Step `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
}

// Step holds exactly one step kind.
type Step struct {
	HTTP    *HTTPStep    `json:"http,omitempty" yaml:"http,omitempty"`
	Wait    *Duration    `json:"wait,omitempty" yaml:"wait,omitempty"`
	Session *SessionStep `json:"session,omitempty" yaml:"session,omitempty"`
	Ensure  *EnsureStep  `json:"ensure,omitempty" yaml:"ensure,omitempty"`
	Measure *GroupStep   `json:"measure,omitempty" yaml:"measure,omitempty"`
	Repeat  *RepeatStep  `json:"repeat,omitempty" yaml:"repeat,omitempty"`
	ForEach *ForEachStep `json:"forEach,omitempty" yaml:"forEach,omitempty"`
}

// HTTPStep issues one request. String fields accept {{placeholders}}.
type HTTPStep struct {
	// Name labels the request in metrics; the response is saved under it
	// unless SaveTo says otherwise
	Name string `json:"name" yaml:"name" validate:"required"`

	Method  string            `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	URL     string            `json:"url" yaml:"url" validate:"required"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	Form    map[string]string `json:"form,omitempty" yaml:"form,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`

	// Auth authenticates as the running actor
	Auth bool `json:"auth,omitempty" yaml:"auth,omitempty"`

	SaveTo string `json:"saveTo,omitempty" yaml:"saveTo,omitempty"`
	Scope  string `json:"scope,omitempty" yaml:"scope,omitempty" validate:"omitempty,oneof=actor user simulation shared global"`

	Retry      *RetryStep `json:"retry,omitempty" yaml:"retry,omitempty"`
	Cumulative bool       `json:"cumulative,omitempty" yaml:"cumulative,omitempty"`

	// Extract saves JSONPath values of the response body under the map keys
	Extract map[string]string `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// RetryStep retries responses with one of Statuses up to Max more times.
type RetryStep struct {
	Statuses []int `json:"statuses" yaml:"statuses" validate:"required,min=1,dive,gte=100,lte=599"`
	Max      int   `json:"max" yaml:"max" validate:"gt=0"`
}

// SessionStep writes a value into the actor session.
type SessionStep struct {
	Key   string `json:"key" yaml:"key" validate:"required"`
	Value any    `json:"value" yaml:"value"`
}

// EnsureStep ends the workflow execution when its check fails. Exactly
// one check is set.
type EnsureStep struct {
	Status   *StatusCheck   `json:"status,omitempty" yaml:"status,omitempty"`
	JSONPath *JSONPathCheck `json:"jsonPath,omitempty" yaml:"jsonPath,omitempty"`
	Schema   *SchemaCheck   `json:"schema,omitempty" yaml:"schema,omitempty"`
	Reason   string         `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// StatusCheck compares the status code of a saved response.
type StatusCheck struct {
	Step   string `json:"step" yaml:"step" validate:"required"`
	Equals int    `json:"equals,omitempty" yaml:"equals,omitempty"`
	In     []int  `json:"in,omitempty" yaml:"in,omitempty"`
}

// JSONPathCheck compares a value of a saved response body.
type JSONPathCheck struct {
	Step   string `json:"step" yaml:"step" validate:"required"`
	Path   string `json:"path" yaml:"path" validate:"required"`
	Equals any    `json:"equals,omitempty" yaml:"equals,omitempty"`
	Exists bool   `json:"exists,omitempty" yaml:"exists,omitempty"`
}

// SchemaCheck validates a saved response body against a JSON Schema.
type SchemaCheck struct {
	Step   string         `json:"step" yaml:"step" validate:"required"`
	Schema map[string]any `json:"schema" yaml:"schema" validate:"required"`
}

// GroupStep times a group of steps under Tag.
type GroupStep struct {
	Tag   string `json:"tag" yaml:"tag" validate:"required"`
	Steps []Step `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
}

// RepeatStep runs Steps Times times.
type RepeatStep struct {
	Times int    `json:"times" yaml:"times" validate:"gt=0"`
	Steps []Step `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
}

// ForEachStep runs Steps once per element, binding the element to the
// placeholder named As.
type ForEachStep struct {
	Name string `json:"name" yaml:"name" validate:"required"`

	// Items is a fixed element list; From names a session list instead
	Items []any  `json:"items,omitempty" yaml:"items,omitempty"`
	From  string `json:"from,omitempty" yaml:"from,omitempty"`

	As    string `json:"as,omitempty" yaml:"as,omitempty"`
	Steps []Step `json:"steps" yaml:"steps" validate:"required,min=1,dive"`

	SaveTo string `json:"saveTo,omitempty" yaml:"saveTo,omitempty"`
	Scope  string `json:"scope,omitempty" yaml:"scope,omitempty" validate:"omitempty,oneof=actor user simulation shared global"`
}
