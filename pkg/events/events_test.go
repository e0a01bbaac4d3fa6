package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebarkov/veriflow/pkg/models"
)

func TestNewTaskAssigned(t *testing.T) {
	t.Parallel()

	doc := &models.Document{ID: 10}
	task := &models.Task{ID: 4, Step: 1, AssigneeID: 7, Action: models.TaskActionSign}

	event := NewTaskAssigned(doc, task)

	assert.Equal(t, TaskAssignedEvent, event.GetType())
	assert.Equal(t, int64(10), event.DocumentID)
	assert.Equal(t, int64(4), event.TaskID)
	assert.Equal(t, int64(7), event.AssigneeID)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestEventsSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	doc := &models.Document{ID: 3, Title: "Order 17", AuthorID: 1, RecipientID: 2}
	event := NewDocumentCreated(doc)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded DocumentCreated
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "Order 17", decoded.Title)
	assert.Equal(t, DocumentCreatedEvent, decoded.Type)
}

func TestNewExecutionAssigned_CollectsAssignees(t *testing.T) {
	t.Parallel()

	doc := &models.Document{
		ID: 5,
		Assignments: []*models.ExecutionAssignment{
			{AssigneeID: 11},
			{AssigneeID: 12},
		},
	}

	event := NewExecutionAssigned(doc)

	assert.Equal(t, []int64{11, 12}, event.AssigneeIDs)
	assert.Equal(t, ExecutionAssignedEvent, event.GetType())
}
