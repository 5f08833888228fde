package domain

import (
	"time"

	"github.com/google/uuid"
)

// Domain event names.
const (
	EventUserCreated              = "UserCreated"
	EventUserUpdated              = "UserUpdated"
	EventGroupCreated             = "GroupCreated"
	EventCollectionCreated        = "CollectionCreated"
	EventFileCreated              = "FileCreated"
	EventNewVersionOfFileCreated  = "NewVersionOfFileCreated"
	EventAddedUserToGroup         = "AddedUserToGroup"
	EventAddedChildToCollection   = "AddedChildToCollection"
	EventAddedGroupToCollection   = "AddedGroupToCollection"
	EventAddedFileToCollection    = "AddedFileToCollection"
)

// Event is the envelope delivered to every configured event sink. Each event
// carries a unique id, a UTC timestamp, and a serializable snapshot of the
// affected entities. Delivery is at-least-once, best-effort.
type Event struct {
	Name       string         `json:"event"`
	UID        string         `json:"uid"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties"`
}

// NewEvent stamps an event with a fresh uid and the current UTC time.
func NewEvent(name string, properties map[string]any) Event {
	return Event{
		Name:       name,
		UID:        uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Properties: properties,
	}
}

func UserCreatedEvent(user *User) Event {
	return NewEvent(EventUserCreated, user.EventProperties())
}

func UserUpdatedEvent(user *User) Event {
	return NewEvent(EventUserUpdated, user.EventProperties())
}

func GroupCreatedEvent(group *Group) Event {
	return NewEvent(EventGroupCreated, group.EventProperties())
}

func CollectionCreatedEvent(collection *Collection) Event {
	return NewEvent(EventCollectionCreated, collection.EventProperties())
}

func FileCreatedEvent(file *File) Event {
	props := file.EventProperties()
	props["VersionCount"] = file.VersionCount
	return NewEvent(EventFileCreated, props)
}

func NewVersionOfFileCreatedEvent(file *File, version *FileVersion) Event {
	props := file.EventProperties()
	props["VersionCount"] = file.VersionCount
	props["Version"] = version.EventProperties()
	return NewEvent(EventNewVersionOfFileCreated, props)
}

func AddedUserToGroupEvent(user *User, group *Group) Event {
	return NewEvent(EventAddedUserToGroup, map[string]any{
		"User":  user.EventProperties(),
		"Group": group.EventProperties(),
	})
}

func AddedChildToCollectionEvent(child, parent *Collection) Event {
	return NewEvent(EventAddedChildToCollection, map[string]any{
		"Child":  child.EventProperties(),
		"Parent": parent.EventProperties(),
	})
}

func AddedGroupToCollectionEvent(group *Group, collection *Collection) Event {
	return NewEvent(EventAddedGroupToCollection, map[string]any{
		"Group":      group.EventProperties(),
		"Collection": collection.EventProperties(),
	})
}

func AddedFileToCollectionEvent(file *File, collection *Collection) Event {
	return NewEvent(EventAddedFileToCollection, map[string]any{
		"File":       file.EventProperties(),
		"Collection": collection.EventProperties(),
	})
}
