package api

// Operation names, used for logging and metrics labels.
const (
	opAPIVersion       = "ApiVersion"
	opServerInfo       = "ServerInfo"
	opMetricsArray     = "MetricsArray"
	opShares           = "Shares"
	opDisks            = "Disks"
	opUPSDevices       = "UpsDevices"
	opDockerContainers = "DockerContainers"
	opVMs              = "VMs"
	opDockerStart      = "DockerStart"
	opDockerStop       = "DockerStop"
	opVMStart          = "StartVM"
	opVMStop           = "StopVM"
	opParityStart      = "StartParityCheck"
	opParityPause      = "PauseParityCheck"
	opParityResume     = "ResumeParityCheck"
	opParityCancel     = "CancelParityCheck"
	opSubCPUUsage      = "CpuUsage"
	opSubCPUMetrics    = "CpuMetrics"
	opSubMemory        = "Memory"
)

const queryAPIVersion = `
query ApiVersion {
  info {
    versions {
      core {
        api
      }
    }
  }
}`

const queryServerInfo = `
query ServerInfo {
  server {
    localurl
    name
  }
  info {
    os {
      uptime
    }
    versions {
      core {
        unraid
      }
    }
  }
}`

const queryMetricsArrayV420 = `
query MetricsArray {
  metrics {
    memory {
      free
      total
      percentTotal
      active
      available
    }
    cpu {
      percentTotal
    }
  }
  array {
    state
    capacity {
      kilobytes {
        free
        used
        total
      }
    }
  }
}`

// The 4.26 variant layers parity-check detail and CPU package telemetry on
// top of the fields the 4.20 variant already extracts.
const queryMetricsArrayV426 = `
query MetricsArray {
  metrics {
    memory {
      free
      total
      percentTotal
      active
      available
    }
    cpu {
      percentTotal
    }
  }
  array {
    state
    capacity {
      kilobytes {
        free
        used
        total
      }
    }
    parityCheck {
      status
      date
      duration
      speed
      errors
      progress
    }
  }
  info {
    cpu {
      packages {
        power
        temp
      }
    }
  }
}`

const queryShares = `
query Shares {
  shares {
    name
    free
    used
    size
    allocator
    floor
  }
}`

const queryDisks = `
query Disks {
  array {
    disks {
      name
      status
      temp
      fsSize
      fsFree
      fsUsed
      type
      id
      isSpinning
    }
    caches {
      name
      status
      temp
      fsSize
      fsFree
      fsUsed
      type
      id
      isSpinning
    }
    parities {
      name
      status
      temp
      type
      id
      isSpinning
    }
  }
}`

const queryUPSDevices = `
query UpsDevices {
  upsDevices {
    id
    name
    model
    status
    battery {
      chargeLevel
      estimatedRuntime
      health
    }
    power {
      loadPercentage
      inputVoltage
      outputVoltage
    }
  }
}`

const queryDockerContainers = `
query DockerContainers {
  docker {
    containers {
      id
      names
      state
      image
      autoStart
    }
  }
}`

const queryVMs = `
query VMs {
  vms {
    domain {
      id
      name
      state
    }
  }
}`

const mutationDockerStart = `
mutation DockerStart($id: PrefixedID!) {
  docker {
    start(id: $id) {
      id
      names
      state
    }
  }
}`

const mutationDockerStop = `
mutation DockerStop($id: PrefixedID!) {
  docker {
    stop(id: $id) {
      id
      names
      state
    }
  }
}`

const mutationVMStart = `
mutation StartVM($id: PrefixedID!) {
  vm {
    start(id: $id)
  }
}`

const mutationVMStop = `
mutation StopVM($id: PrefixedID!) {
  vm {
    stop(id: $id)
  }
}`

const mutationParityStart = `
mutation StartParityCheck {
  array {
    startParityCheck
  }
}`

const mutationParityPause = `
mutation PauseParityCheck {
  array {
    pauseParityCheck
  }
}`

const mutationParityResume = `
mutation ResumeParityCheck {
  array {
    resumeParityCheck
  }
}`

const mutationParityCancel = `
mutation CancelParityCheck {
  array {
    cancelParityCheck
  }
}`

const subscriptionCPUUsage = `
subscription CpuUsage {
  metricsCpu {
    percentTotal
  }
}`

const subscriptionCPUMetrics = `
subscription CpuMetrics {
  cpuPackages {
    power
    temp
  }
}`

const subscriptionMemory = `
subscription Memory {
  metricsMemory {
    free
    total
    active
    available
    percentTotal
  }
}`
