package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasmon/unraid/pkg/graphql"
	"github.com/nasmon/unraid/pkg/types"
)

// TestClientDisks tests the disk listing: data and cache disks first with
// filesystem fields, parities last without
func TestClientDisks(t *testing.T) {
	srv, _ := newTestServer(t, "4.20.0", map[string]string{
		"Disks": `{"data":{"array":{
			"disks":[{"id":"d1","name":"disk1","status":"DISK_OK","type":"DATA","fsSize":4000,"fsUsed":1000,"isSpinning":true}],
			"caches":[{"id":"c1","name":"cache","status":"DISK_OK","type":"CACHE","fsSize":2000,"fsUsed":500,"isSpinning":true}],
			"parities":[{"id":"p1","name":"parity","status":"DISK_OK","type":"PARITY","isSpinning":false}]
		}}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	disks, err := client.Disks(context.Background())
	require.NoError(t, err)
	require.Len(t, disks, 3)

	assert.Equal(t, "d1", disks[0].ID)
	assert.Equal(t, "c1", disks[1].ID)
	assert.Equal(t, "p1", disks[2].ID)

	assert.NotNil(t, disks[0].FSSize)
	assert.NotNil(t, disks[1].FSSize)
	assert.Nil(t, disks[2].FSSize)
	assert.Equal(t, types.DiskTypeParity, disks[2].Type)
}

// TestClientDockerContainers tests container listing with an unknown state
// degrading instead of failing
func TestClientDockerContainers(t *testing.T) {
	srv, _ := newTestServer(t, "4.20.0", map[string]string{
		"DockerContainers": `{"data":{"docker":{"containers":[
			{"id":"c:1","names":["/plex"],"state":"RUNNING","image":"plex:latest","autoStart":true},
			{"id":"c:2","names":["/mystery"],"state":"TELEPORTED","image":"x","autoStart":false}
		]}}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	containers, err := client.DockerContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, containers, 2)

	assert.Equal(t, "plex", containers[0].Name)
	assert.Equal(t, types.ContainerStateRunning, containers[0].State)
	assert.True(t, containers[0].AutoStart)
	assert.Equal(t, types.ContainerStateExited, containers[1].State)
}

// TestClientStartContainer tests the start mutation: variables on the wire
// and the refreshed container coming back
func TestClientStartContainer(t *testing.T) {
	srv, h := newTestServer(t, "4.20.0", map[string]string{
		"DockerStart": `{"data":{"docker":{"start":{"id":"c:1","names":["/plex"],"state":"RUNNING"}}}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	container, err := client.StartContainer(context.Background(), "c:1")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"id": "c:1"}, h.lastVariables)
	assert.Equal(t, "plex", container.Name)
	assert.Equal(t, types.ContainerStateRunning, container.State)
}

// TestClientStopContainerMissingResult tests that a mutation response
// without the container is an invalid response
func TestClientStopContainerMissingResult(t *testing.T) {
	srv, _ := newTestServer(t, "4.20.0", map[string]string{
		"DockerStop": `{"data":{"docker":{}}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	_, err = client.StopContainer(context.Background(), "c:1")

	var invalid *graphql.InvalidResponseError
	assert.ErrorAs(t, err, &invalid)
}

// TestClientVirtualMachines tests the VM listing
func TestClientVirtualMachines(t *testing.T) {
	srv, _ := newTestServer(t, "4.20.0", map[string]string{
		"VMs": `{"data":{"vms":{"domain":[{"id":"vm-1","name":"windows","state":"RUNNING"}]}}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	vms, err := client.VirtualMachines(context.Background())
	require.NoError(t, err)
	require.Len(t, vms, 1)
	assert.Equal(t, types.VMStateRunning, vms[0].State)
}

// TestClientMetricsArrayBaseline tests that the 4.20 variant reads the
// merged metrics query without parity detail
func TestClientMetricsArrayBaseline(t *testing.T) {
	srv, _ := newTestServer(t, "4.20.0", map[string]string{
		"MetricsArray": `{"data":{
			"metrics":{"memory":{"free":1,"total":4,"percentTotal":75},"cpu":{"percentTotal":10}},
			"array":{"state":"STARTED","capacity":{"kilobytes":{"free":"500","used":"1500","total":"2000"}}}
		}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	m, err := client.MetricsArray(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ArrayStateStarted, m.State)
	assert.Equal(t, int64(2000), m.CapacityTotalKB)
	assert.Nil(t, m.CPUTemp)
	assert.Empty(t, m.ParityCheckStatus)
}

// TestClientMetricsArrayExtended tests that the 4.26 variant picks up
// parity detail and package telemetry
func TestClientMetricsArrayExtended(t *testing.T) {
	srv, _ := newTestServer(t, "4.26.0", map[string]string{
		"MetricsArray": `{"data":{
			"metrics":{"memory":{"percentTotal":50},"cpu":{"percentTotal":10}},
			"array":{
				"state":"STARTED",
				"capacity":{"kilobytes":{"free":"1","used":"1","total":"2"}},
				"parityCheck":{"status":"NEVER_RUN"}
			},
			"info":{"cpu":{"packages":{"power":[60.0],"temp":[48.5]}}}
		}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	m, err := client.MetricsArray(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ParityCheckNeverRun, m.ParityCheckStatus)
	require.NotNil(t, m.CPUTemp)
	assert.Equal(t, 48.5, *m.CPUTemp)
	require.NotNil(t, m.CPUPower)
	assert.Equal(t, 60.0, *m.CPUPower)
}

// TestClientUPSDevices tests the UPS capability on the newer variant
func TestClientUPSDevices(t *testing.T) {
	srv, _ := newTestServer(t, "4.26.0", map[string]string{
		"UpsDevices": `{"data":{"upsDevices":[{
			"id":"ups-1","name":"Main","model":"APC","status":"ONLINE",
			"battery":{"chargeLevel":97,"estimatedRuntime":2400,"health":"GOOD"},
			"power":{"loadPercentage":18.0}
		}]}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	q, ok := client.(UPSQuerier)
	require.True(t, ok)

	devices, err := q.UPSDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, int64(97), devices[0].BatteryCharge)
}

// TestClientShares tests the share listing
func TestClientShares(t *testing.T) {
	srv, _ := newTestServer(t, "4.20.0", map[string]string{
		"Shares": `{"data":{"shares":[{"name":"media","free":100,"used":900,"size":1000,"allocator":"highwater","floor":"0"}]}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	shares, err := client.Shares(context.Background())
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, "media", shares[0].Name)
	assert.Equal(t, int64(900), shares[0].Used)
}

// TestClientParityMutations tests that parity control calls succeed
// against minimal acknowledgments
func TestClientParityMutations(t *testing.T) {
	srv, _ := newTestServer(t, "4.20.0", map[string]string{
		"StartParityCheck":  `{"data":{"array":{"startParityCheck":"STARTED"}}}`,
		"PauseParityCheck":  `{"data":{"array":{"pauseParityCheck":"PAUSED"}}}`,
		"ResumeParityCheck": `{"data":{"array":{"resumeParityCheck":"STARTED"}}}`,
		"CancelParityCheck": `{"data":{"array":{"cancelParityCheck":"CANCELLED"}}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, client.StartParityCheck(ctx))
	assert.NoError(t, client.PauseParityCheck(ctx))
	assert.NoError(t, client.ResumeParityCheck(ctx))
	assert.NoError(t, client.CancelParityCheck(ctx))
}

// TestClientMalformedData tests that a data payload with the wrong shape
// is an invalid response
func TestClientMalformedData(t *testing.T) {
	srv, _ := newTestServer(t, "4.20.0", map[string]string{
		"Shares": `{"data":{"shares":"not-a-list"}}`,
	})

	client, err := Resolve(context.Background(), srv.URL, "key")
	require.NoError(t, err)

	_, err = client.Shares(context.Background())

	var invalid *graphql.InvalidResponseError
	assert.ErrorAs(t, err, &invalid)
}
