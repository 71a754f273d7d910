package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wire resets the health state to a given scenario: role, backend
// reachability, and live monitor state.
func wire(t *testing.T, role Role, storageUp bool, monitor MonitorState) {
	t.Helper()
	state = &healthState{startTime: time.Now(), role: role}
	SetStorageProbe("BoltStorage", func() bool { return storageUp })
	SetMonitorProbe(func() MonitorState { return monitor })
}

func TestGetHealth_StandbyIsHealthy(t *testing.T) {
	wire(t, RoleStandby, true, MonitorState{})

	health := GetHealth()

	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, RoleStandby, health.Role)
	assert.Empty(t, health.Reason)
}

func TestGetHealth_StorageUnreachable(t *testing.T) {
	wire(t, RoleActive, false, MonitorState{Running: true})

	health := GetHealth()

	assert.Equal(t, "unhealthy", health.Status)
	assert.Contains(t, health.Reason, "storage")
}

func TestGetHealth_LostHeartbeat(t *testing.T) {
	wire(t, RoleLost, true, MonitorState{})

	health := GetHealth()

	assert.Equal(t, "unhealthy", health.Status)
	assert.Contains(t, health.Reason, "heartbeat")
}

func TestGetReadiness_ActiveAndRunning(t *testing.T) {
	wire(t, RoleActive, true, MonitorState{Running: true, Tasks: 2, Services: 13})

	readiness := GetReadiness()

	assert.Equal(t, "ready", readiness.Status)
	assert.Equal(t, 2, readiness.Monitor.Tasks)
	assert.Equal(t, 13, readiness.Monitor.Services)
}

func TestGetReadiness_StandbyNotReady(t *testing.T) {
	wire(t, RoleStandby, true, MonitorState{})

	readiness := GetReadiness()

	assert.Equal(t, "not_ready", readiness.Status)
	assert.Contains(t, readiness.Reason, "standby")
}

func TestGetReadiness_MonitorNotRunning(t *testing.T) {
	wire(t, RoleActive, true, MonitorState{Running: false})

	readiness := GetReadiness()

	assert.Equal(t, "not_ready", readiness.Status)
	assert.Contains(t, readiness.Reason, "monitor")
}

func TestGetReadiness_StorageOutranksMonitor(t *testing.T) {
	wire(t, RoleActive, false, MonitorState{Running: false})

	readiness := GetReadiness()

	assert.Equal(t, "not_ready", readiness.Status)
	assert.Contains(t, readiness.Reason, "storage")
}

func TestSetRole_Transitions(t *testing.T) {
	wire(t, RoleStandby, true, MonitorState{Running: true})

	SetRole(RoleActive)
	assert.Equal(t, "ready", GetReadiness().Status)

	SetRole(RoleLost)
	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.Contains(t, readiness.Reason, "heartbeat")
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

func TestHealthHandler(t *testing.T) {
	wire(t, RoleStandby, true, MonitorState{})
	SetVersion("test")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	status := decodeStatus(t, w)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "test", status.Version)
	assert.Equal(t, "BoltStorage", status.Storage.Backend)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	wire(t, RoleActive, false, MonitorState{Running: true})

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decodeStatus(t, w).Status)
}

func TestReadyHandler(t *testing.T) {
	wire(t, RoleActive, true, MonitorState{Running: true})

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest("GET", "/ready", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decodeStatus(t, w).Status)
}

func TestReadyHandler_Standby(t *testing.T) {
	wire(t, RoleStandby, true, MonitorState{})

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest("GET", "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", decodeStatus(t, w).Status)
}

func TestLivenessHandler(t *testing.T) {
	wire(t, RoleStandby, false, MonitorState{})

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest("GET", "/live", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "alive", response["status"])
	assert.NotEmpty(t, response["uptime"])
}
