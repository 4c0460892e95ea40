package biz

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"project-billing/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExhaustedRecord(projectID string) *ProjectRecord {
	return &ProjectRecord{
		ProjectID: projectID,
		Amount:    100,
		Used:      150,
		Until:     time.Now().Add(time.Hour),
	}
}

func seedActuator(projectID string) *fakeActuator {
	a := newFakeActuator()
	a.users[projectID] = []string{"u1", "u2"}
	a.userQuotas[projectID+"/u1"] = Quota{Cores: 4, RAM: 8192}
	a.userQuotas[projectID+"/u2"] = Quota{Cores: 2, RAM: 4096}
	a.projectQuotas[projectID] = Quota{Cores: 20, RAM: 51200}
	a.instances[projectID] = []*Instance{{ID: "vm-1"}, {ID: "vm-2"}}
	return a
}

func TestExhaustionEnforcer_Enforce(t *testing.T) {
	ctx := context.Background()
	cred := &AdminCredential{Username: "admin", Token: "token"}

	t.Run("zeroes quotas and keeps instances by default", func(t *testing.T) {
		actuator := seedActuator("p1")
		events := &memEventRepo{}
		locker := &fakeLocker{}
		enforcer := NewExhaustionEnforcer(actuator, cred, locker, events, NewAgentConfig(nil), testLogger)

		report, err := enforcer.Enforce(ctx, newExhaustedRecord("p1"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"u1", "u2"}, report.UsersZeroed)
		assert.True(t, report.ProjectZeroed)
		assert.Equal(t, []string{"vm-1", "vm-2"}, report.Instances)
		assert.Empty(t, report.InstancesDeleted)
		assert.Empty(t, actuator.deleted)
		assert.Equal(t, Quota{}, actuator.userQuotas["p1/u1"])
		assert.False(t, actuator.noCredential)
		assert.Equal(t, []string{constants.RedisKeyEnforceLock + "p1"}, locker.acquired)

		require.Len(t, events.events, 1)
		assert.Equal(t, constants.ExhaustedReasonBalance, events.events[0].Reason)
		assert.Equal(t, 2, events.events[0].UsersZeroed)
	})

	t.Run("second enforcement makes no set calls", func(t *testing.T) {
		actuator := seedActuator("p1")
		enforcer := NewExhaustionEnforcer(actuator, cred, nil, nil, NewAgentConfig(nil), testLogger)

		_, err := enforcer.Enforce(ctx, newExhaustedRecord("p1"))
		require.NoError(t, err)
		setCalls := actuator.setCalls

		report, err := enforcer.Enforce(ctx, newExhaustedRecord("p1"))
		require.NoError(t, err)
		assert.Equal(t, setCalls, actuator.setCalls)
		assert.Empty(t, report.UsersZeroed)
		assert.False(t, report.ProjectZeroed)
	})

	t.Run("deletes instances when policy enabled", func(t *testing.T) {
		actuator := seedActuator("p1")
		agent := NewAgentConfig(nil)
		agent.DeleteInstances = true
		enforcer := NewExhaustionEnforcer(actuator, cred, nil, nil, agent, testLogger)

		report, err := enforcer.Enforce(ctx, newExhaustedRecord("p1"))
		require.NoError(t, err)
		assert.Equal(t, []string{"vm-1", "vm-2"}, actuator.deleted)
		assert.Equal(t, []string{"vm-1", "vm-2"}, report.InstancesDeleted)
	})

	t.Run("partial failure continues remaining steps", func(t *testing.T) {
		actuator := seedActuator("p1")
		actuator.errs["get_user_quota:u2"] = stderrors.New("timeout")
		enforcer := NewExhaustionEnforcer(actuator, cred, nil, nil, NewAgentConfig(nil), testLogger)

		report, err := enforcer.Enforce(ctx, newExhaustedRecord("p1"))
		require.Error(t, err)
		assert.Equal(t, ReasonActuatorPartialFailure, ReasonOf(err))
		assert.Equal(t, []string{"u1"}, report.UsersZeroed)
		assert.True(t, report.ProjectZeroed)
	})

	t.Run("unreachable actuator is external unavailable", func(t *testing.T) {
		actuator := seedActuator("p1")
		down := stderrors.New("connection refused")
		actuator.errs["list_users"] = down
		actuator.errs["get_project_quota"] = down
		actuator.errs["list_instances"] = down
		enforcer := NewExhaustionEnforcer(actuator, cred, nil, nil, NewAgentConfig(nil), testLogger)

		_, err := enforcer.Enforce(ctx, newExhaustedRecord("p1"))
		require.Error(t, err)
		assert.Equal(t, ReasonExternalUnavailable, ReasonOf(err))
		assert.True(t, stderrors.Is(err, down))
	})

	t.Run("busy enforcement lock fails fast", func(t *testing.T) {
		actuator := seedActuator("p1")
		enforcer := NewExhaustionEnforcer(actuator, cred, &fakeLocker{busy: true}, nil, NewAgentConfig(nil), testLogger)

		_, err := enforcer.Enforce(ctx, newExhaustedRecord("p1"))
		require.Error(t, err)
		assert.Equal(t, ReasonExternalUnavailable, ReasonOf(err))
		assert.Zero(t, actuator.setCalls)
	})
}
