package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPermission_TableName(t *testing.T) {
	assert.Equal(t, "servicebus_queue_permission", Permission{}.TableName())
}

func TestNewPermission(t *testing.T) {
	p := NewPermission(`.\private$\orders`, "Everyone", RightGenericRead|RightGenericWrite)

	assert.Equal(t, `.\private$\orders`, p.QueuePath)
	assert.Equal(t, "Everyone", p.Principal)
	assert.Equal(t, RightGenericRead|RightGenericWrite, p.Rights)
	assert.WithinDuration(t, time.Now(), p.CreatedAt, time.Second)
}

func TestAccessRights_Has(t *testing.T) {
	tests := []struct {
		name     string
		rights   AccessRights
		check    AccessRights
		expected bool
	}{
		{"Read has read", RightGenericRead, RightGenericRead, true},
		{"Read lacks write", RightGenericRead, RightGenericWrite, false},
		{"Read+write has both", RightGenericRead | RightGenericWrite, RightGenericRead | RightGenericWrite, true},
		{"Full control implies write", RightFullControl, RightGenericWrite, true},
		{"None lacks read", 0, RightGenericRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.rights.Has(tt.check))
		})
	}
}

func TestAccessRights_String(t *testing.T) {
	assert.Equal(t, "full-control", RightFullControl.String())
	assert.Equal(t, "read+write", (RightGenericRead | RightGenericWrite).String())
	assert.Equal(t, "read", RightGenericRead.String())
	assert.Equal(t, "none", AccessRights(0).String())
}
