package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"volunteer-manager/internal/model"
	"volunteer-manager/internal/tasks"
	"volunteer-manager/internal/template"
)

var (
	// ErrMessageMismatch is returned when a driver receives a message of another type.
	ErrMessageMismatch = errors.New("message does not match driver subscription type")
	ErrUnknownType     = errors.New("unknown subscription type")
	errNotInitialized  = errors.New("driver not initialized")
)

// Driver renders and dispatches one subscription type across channels.
// Each method returns false without side effects when the recipient lacks the
// contact field for the channel or no template exists for it, and true once
// the delivery has been handed off.
type Driver interface {
	Init(ctx context.Context) error
	PublishEmail(ctx context.Context, publicationID int64, r model.Recipient, msg Message) (bool, error)
	PublishNotification(ctx context.Context, publicationID int64, r model.Recipient, msg Message) (bool, error)
	PublishSms(ctx context.Context, publicationID int64, r model.Recipient, msg Message) (bool, error)
	PublishWhatsapp(ctx context.Context, publicationID int64, r model.Recipient, msg Message) (bool, error)
}

// TaskScheduler is implemented by *tasks.Scheduler.
type TaskScheduler interface {
	Schedule(ctx context.Context, req tasks.Request) (int64, error)
}

// TemplateSource is implemented by repository.TemplateRepository.
type TemplateSource interface {
	ForType(ctx context.Context, t model.SubscriptionType) (map[model.Channel]model.Template, error)
}

// NotificationWriter is implemented by repository.NotificationRepository.
type NotificationWriter interface {
	Create(ctx context.Context, n *model.Notification) (int64, error)
}

// Deps are the collaborators shared by every driver.
type Deps struct {
	Scheduler     TaskScheduler
	Templates     TemplateSource
	Notifications NotificationWriter
}

// newDriver returns the driver for t. Every value of model.SubscriptionTypes
// must have a case here.
func newDriver(t model.SubscriptionType, deps Deps, sourceUserID *int64) (Driver, error) {
	var keys []string
	switch t {
	case model.SubscriptionApplication:
		keys = keysOf(ApplicationMessage{}.values())
	case model.SubscriptionRegistration:
		keys = keysOf(RegistrationMessage{}.values())
	case model.SubscriptionHelp:
		keys = keysOf(HelpMessage{}.values())
	case model.SubscriptionTest:
		keys = keysOf(TestMessage{}.values())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return &driver{
		subType: t,
		keys:    append(keys, keysOf(recipientValues(model.Recipient{}))...),
		deps:    deps,
		source:  sourceUserID,
	}, nil
}

func keysOf(v template.Values) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type driver struct {
	subType   model.SubscriptionType
	keys      []string
	deps      Deps
	source    *int64
	templates map[model.Channel]model.Template
}

// Init loads the templates for the driver's type and rejects any that use a
// placeholder the message type does not provide.
func (d *driver) Init(ctx context.Context) error {
	templates, err := d.deps.Templates.ForType(ctx, d.subType)
	if err != nil {
		return fmt.Errorf("load %s templates: %w", d.subType, err)
	}
	for channel, t := range templates {
		for _, text := range []string{t.Title, t.Body} {
			if err := template.Validate(text, d.keys...); err != nil {
				return fmt.Errorf("%s/%s template: %w", d.subType, channel, err)
			}
		}
	}
	d.templates = templates
	return nil
}

// render returns the rendered title and body for channel, or ok=false when no
// template is configured.
func (d *driver) render(channel model.Channel, r model.Recipient, msg Message) (title, body string, tmpl model.Template, ok bool, err error) {
	if d.templates == nil {
		return "", "", tmpl, false, errNotInitialized
	}
	if msg == nil || msg.SubscriptionType() != d.subType {
		return "", "", tmpl, false, fmt.Errorf("%w: driver %s", ErrMessageMismatch, d.subType)
	}
	tmpl, ok = d.templates[channel]
	if !ok {
		return "", "", tmpl, false, nil
	}

	values := msg.values()
	for k, v := range recipientValues(r) {
		values[k] = v
	}
	if title, err = template.Render(tmpl.Title, values); err != nil {
		return "", "", tmpl, false, err
	}
	if body, err = template.Render(tmpl.Body, values); err != nil {
		return "", "", tmpl, false, err
	}
	return title, body, tmpl, true, nil
}

func (d *driver) attribution(r model.Recipient) tasks.Attribution {
	return tasks.Attribution{SourceUserID: d.source, TargetUserID: r.UserID}
}

func (d *driver) PublishEmail(ctx context.Context, publicationID int64, r model.Recipient, msg Message) (bool, error) {
	if r.EmailAddress == "" {
		return false, nil
	}
	subject, body, _, ok, err := d.render(model.ChannelEmail, r, msg)
	if err != nil || !ok {
		return false, err
	}
	_, err = d.deps.Scheduler.Schedule(ctx, tasks.Request{
		Name: tasks.SendEmailTask,
		Params: tasks.SendEmailParams{
			Attribution:   d.attribution(r),
			PublicationID: publicationID,
			To:            r.EmailAddress,
			Subject:       subject,
			Body:          body,
		},
		Source: "driver",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *driver) PublishNotification(ctx context.Context, publicationID int64, r model.Recipient, msg Message) (bool, error) {
	title, body, _, ok, err := d.render(model.ChannelNotification, r, msg)
	if err != nil || !ok {
		return false, err
	}
	pubID := publicationID
	_, err = d.deps.Notifications.Create(ctx, &model.Notification{
		UserID:        r.UserID,
		PublicationID: &pubID,
		Title:         title,
		Body:          body,
		URL:           msg.values()["link"],
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *driver) PublishSms(ctx context.Context, publicationID int64, r model.Recipient, msg Message) (bool, error) {
	if r.PhoneNumber == "" {
		return false, nil
	}
	_, body, _, ok, err := d.render(model.ChannelSMS, r, msg)
	if err != nil || !ok {
		return false, err
	}
	_, err = d.deps.Scheduler.Schedule(ctx, tasks.Request{
		Name: tasks.SendSmsTask,
		Params: tasks.SendSmsParams{
			Attribution:   d.attribution(r),
			PublicationID: publicationID,
			To:            r.PhoneNumber,
			Body:          body,
		},
		Source: "driver",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// PublishWhatsapp sends the approved content template; the rendered title and
// body fill its variables 1 and 2.
func (d *driver) PublishWhatsapp(ctx context.Context, publicationID int64, r model.Recipient, msg Message) (bool, error) {
	if r.PhoneNumber == "" {
		return false, nil
	}
	title, body, tmpl, ok, err := d.render(model.ChannelWhatsapp, r, msg)
	if err != nil || !ok || tmpl.ContentSID == "" {
		return false, err
	}
	_, err = d.deps.Scheduler.Schedule(ctx, tasks.Request{
		Name: tasks.SendWhatsappTask,
		Params: tasks.SendWhatsappParams{
			Attribution:   d.attribution(r),
			PublicationID: publicationID,
			To:            r.PhoneNumber,
			ContentSID:    tmpl.ContentSID,
			Variables:     map[string]string{"1": title, "2": body},
		},
		Source: "driver",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
