package api

import "encoding/json"

// Wire payload structs for the fixed query catalog. Field sets and nesting
// differ between API versions; optional substructures are pointers so
// absence stays distinguishable from zero values.

type coreVersionsPayload struct {
	Core struct {
		API    string `json:"api"`
		Unraid string `json:"unraid"`
	} `json:"core"`
}

type apiVersionPayload struct {
	Info struct {
		Versions coreVersionsPayload `json:"versions"`
	} `json:"info"`
}

type serverInfoPayload struct {
	Server struct {
		LocalURL string `json:"localurl"`
		Name     string `json:"name"`
	} `json:"server"`
	Info struct {
		OS *struct {
			Uptime string `json:"uptime"`
		} `json:"os"`
		Versions coreVersionsPayload `json:"versions"`
	} `json:"info"`
}

type memoryPayload struct {
	Free         int64   `json:"free"`
	Total        int64   `json:"total"`
	Active       int64   `json:"active"`
	Available    int64   `json:"available"`
	PercentTotal float64 `json:"percentTotal"`
}

type cpuPayload struct {
	PercentTotal float64 `json:"percentTotal"`
}

// Capacity counters arrive as JSON strings on some server builds, so they
// decode through json.Number.
type capacityPayload struct {
	Kilobytes struct {
		Free  json.Number `json:"free"`
		Used  json.Number `json:"used"`
		Total json.Number `json:"total"`
	} `json:"kilobytes"`
}

type parityCheckPayload struct {
	Status   string   `json:"status"`
	Date     *string  `json:"date"`
	Duration *int64   `json:"duration"`
	Speed    *float64 `json:"speed"`
	Errors   *int64   `json:"errors"`
	Progress *int64   `json:"progress"`
}

type cpuPackagesPayload struct {
	Power []float64 `json:"power"`
	Temp  []float64 `json:"temp"`
}

// metricsArrayPayload covers both variants of the MetricsArray query: the
// 4.20 response simply leaves parityCheck and info absent.
type metricsArrayPayload struct {
	Metrics struct {
		Memory memoryPayload `json:"memory"`
		CPU    cpuPayload    `json:"cpu"`
	} `json:"metrics"`
	Array struct {
		State       string              `json:"state"`
		Capacity    capacityPayload     `json:"capacity"`
		ParityCheck *parityCheckPayload `json:"parityCheck"`
	} `json:"array"`
	Info *struct {
		CPU struct {
			Packages cpuPackagesPayload `json:"packages"`
		} `json:"cpu"`
	} `json:"info"`
}

type sharePayload struct {
	Name      string `json:"name"`
	Free      int64  `json:"free"`
	Used      int64  `json:"used"`
	Size      int64  `json:"size"`
	Allocator string `json:"allocator"`
	Floor     string `json:"floor"`
}

type sharesPayload struct {
	Shares []sharePayload `json:"shares"`
}

type diskPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Type       string `json:"type"`
	Temp       *int64 `json:"temp"`
	FSSize     *int64 `json:"fsSize"`
	FSFree     *int64 `json:"fsFree"`
	FSUsed     *int64 `json:"fsUsed"`
	IsSpinning bool   `json:"isSpinning"`
}

type disksPayload struct {
	Array struct {
		Disks    []diskPayload `json:"disks"`
		Caches   []diskPayload `json:"caches"`
		Parities []diskPayload `json:"parities"`
	} `json:"array"`
}

type upsDevicePayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Model   string `json:"model"`
	Status  string `json:"status"`
	Battery struct {
		ChargeLevel      int64  `json:"chargeLevel"`
		EstimatedRuntime int64  `json:"estimatedRuntime"`
		Health           string `json:"health"`
	} `json:"battery"`
	Power struct {
		LoadPercentage float64  `json:"loadPercentage"`
		InputVoltage   *float64 `json:"inputVoltage"`
		OutputVoltage  *float64 `json:"outputVoltage"`
	} `json:"power"`
}

type upsDevicesPayload struct {
	UPSDevices []upsDevicePayload `json:"upsDevices"`
}

type containerPayload struct {
	ID        string   `json:"id"`
	Names     []string `json:"names"`
	State     string   `json:"state"`
	Image     string   `json:"image"`
	AutoStart bool     `json:"autoStart"`
}

type dockerContainersPayload struct {
	Docker struct {
		Containers []containerPayload `json:"containers"`
	} `json:"docker"`
}

type dockerMutationPayload struct {
	Docker struct {
		Start *containerPayload `json:"start"`
		Stop  *containerPayload `json:"stop"`
	} `json:"docker"`
}

type vmPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type vmsPayload struct {
	VMs struct {
		Domain []vmPayload `json:"domain"`
	} `json:"vms"`
}

// Subscription push payloads.

type cpuUsageEvent struct {
	MetricsCPU cpuPayload `json:"metricsCpu"`
}

type cpuMetricsEvent struct {
	CPUPackages cpuPackagesPayload `json:"cpuPackages"`
}

type memoryEvent struct {
	MetricsMemory memoryPayload `json:"metricsMemory"`
}
