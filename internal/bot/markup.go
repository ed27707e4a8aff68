package bot

import (
	"context"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"planbot/internal/model"
	"planbot/internal/storage"
)

// TaskActionMarkup builds the quick-action buttons attached to a task
// reminder. The callback data round-trips through the router's
// "<action>:<payload>" convention.
func TaskActionMarkup(taskID uuid.UUID) any {
	// Raw button data, not telebot's unique-handler encoding: the router
	// matches on the "done:"/"skip:" prefix itself.
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{{
			{Text: "✅ Mark Done", Data: "done:" + taskID.String()},
			{Text: "⏭ Skip", Data: "skip:" + taskID.String()},
		}},
	}
}

func resolveTaskRef(ctx context.Context, store storage.Store, payload string) (model.Task, error) {
	id, err := uuid.Parse(payload)
	if err != nil {
		return model.Task{}, err
	}
	return store.GetTask(ctx, id)
}
