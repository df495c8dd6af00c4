package config

// configSchema constrains CUE configuration files. Definitions are closed, so
// misspelled fields are rejected.
const configSchema = `
#Config: {
	telemetry?: {
		service_name?:    string & !=""
		service_version?: string & !=""
		environment?:     string

		logging?: {
			level?:               "trace" | "debug" | "info" | "warn" | "error" | "fatal"
			format?:              "console" | "json"
			output?:              string & !=""
			enable_caller?:       bool
			enable_sampling?:     bool
			sampling_initial?:    int & >=0
			sampling_thereafter?: int & >=0
			time_format?:         "unix" | "unixms" | "rfc3339"
		}

		tracing?: {
			enabled?:               bool
			exporter?:              "otlp" | "stdout" | "none"
			endpoint?:              string
			sampling_rate?:         number & >=0 & <=1
			max_export_batch_size?: int & >=0
			export_timeout?:        int & >=0
			headers?: [string]: string
			insecure?: bool
		}

		metrics?: {
			enabled?:   bool
			namespace?: string
			buckets?: [...number]
		}
	}

	sample?: {
		seed?:         int & >=0
		count?:        int & >=1
		format?:       "text" | "json" | "dot"
		max_parallel?: int & >=1
		max_steps?:    int & >=0
		values?: [string]: _
	}

	store?: {
		path?: string
	}

	policy?: {
		paths?: [...string & !=""]
		max_attempts?: int & >=1
		limits?: {
			max_modules?: int & >=0
			max_depth?:   int & >=0
			max_operators?: [string]: int & >=0
			forbidden_operators?: [...string]
		}
	}

	plugins?: {
		paths?: [...string & !=""]
		memory_limit_pages?: int & >=0 & <=65536
	}
}
`

// valuesSchema constrains hyperparameter value files: a flat map from
// hyperparameter name to a scalar value.
const valuesSchema = `
#Values: [string]: number | string | bool
`
