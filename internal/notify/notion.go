package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// NotionDispatcher posts each notification as a page in a Notion database.
// The database needs a "Title" title property plus "User", "Kind",
// "Message", and "Data" rich-text/select properties.
type NotionDispatcher struct {
	client     *notionapi.Client
	databaseID notionapi.DatabaseID
}

// NewNotionDispatcher creates a dispatcher for the given integration token
// and target database.
func NewNotionDispatcher(token, databaseID string) *NotionDispatcher {
	return &NotionDispatcher{
		client:     notionapi.NewClient(notionapi.Token(token)),
		databaseID: notionapi.DatabaseID(databaseID),
	}
}

// Notify implements engine.NotificationDispatcher.
func (d *NotionDispatcher) Notify(ctx context.Context, userID, kind, title, message string, data map[string]interface{}) error {
	props := notionapi.Properties{
		"Title": notionapi.TitleProperty{
			Title: richText(title),
		},
		"User": notionapi.RichTextProperty{
			RichText: richText(userID),
		},
		"Kind": notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: kind,
			},
		},
		"Message": notionapi.RichTextProperty{
			RichText: richText(message),
		},
	}

	if len(data) > 0 {
		encoded, err := json.Marshal(data)
		if err == nil {
			props["Data"] = notionapi.RichTextProperty{
				RichText: richText(string(encoded)),
			}
		}
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: d.databaseID,
		},
		Properties: props,
	}

	if _, err := d.client.Page.Create(ctx, req); err != nil {
		return fmt.Errorf("Notify: create notion page: %w", err)
	}
	return nil
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

var _ engine.NotificationDispatcher = (*NotionDispatcher)(nil)
