package session

// Variant is the visual style of a Notification.
type Variant string

// Variants
const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a user-facing message emitted by a Provider.
type Notification struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a func to Notifier.
type NotifierFunc func(Notification)

func (fn NotifierFunc) Notify(n Notification) { fn(n) }

var discardNotifier = NotifierFunc(func(Notification) {})

func info(title, desc string) Notification {
	return Notification{Title: title, Description: desc, Variant: VariantDefault}
}

func failure(title string, err error) Notification {
	return Notification{Title: title, Description: err.Error(), Variant: VariantDestructive}
}
