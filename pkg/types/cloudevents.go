package types

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ToCloudEvent converts the event into its sdk-go representation.
func (e Event) ToCloudEvent() (cloudevents.Event, error) {
	if err := e.Validate(); err != nil {
		return cloudevents.Event{}, err
	}

	specVersion := e.SpecVersion
	if specVersion == "" {
		specVersion = DefaultSpecVersion
	}
	ce := cloudevents.NewEvent(specVersion)
	ce.SetID(e.ID)
	ce.SetSource(e.Source)
	ce.SetType(e.Type)
	if e.Subject != "" {
		ce.SetSubject(e.Subject)
	}
	if e.DataContentType != "" {
		ce.SetDataContentType(e.DataContentType)
	}
	if e.DataSchema != "" {
		ce.SetDataSchema(e.DataSchema)
	}

	t, ok, err := e.ParsedTime()
	if err != nil {
		return cloudevents.Event{}, err
	}
	if ok {
		ce.SetTime(t)
	}

	for _, name := range e.ExtensionNames() {
		ce.SetExtension(name, e.Extensions[name])
	}

	data, err := e.DataBytes()
	if err != nil {
		return cloudevents.Event{}, err
	}
	ce.DataEncoded = data

	if err := ce.Validate(); err != nil {
		return cloudevents.Event{}, fmt.Errorf("invalid cloudevent: %w", err)
	}
	return ce, nil
}

// FromCloudEvent converts an sdk-go event into an Event. Data is kept as the
// raw bytes carried by the sdk-go event.
func FromCloudEvent(ce cloudevents.Event) Event {
	e := Event{
		ID:              ce.ID(),
		Source:          ce.Source(),
		Type:            ce.Type(),
		SpecVersion:     ce.SpecVersion(),
		Subject:         ce.Subject(),
		DataContentType: ce.DataContentType(),
		DataSchema:      ce.DataSchema(),
	}
	if e.SpecVersion == "" {
		e.SpecVersion = DefaultSpecVersion
	}
	if t := ce.Time(); !t.IsZero() {
		e.Time = t.UTC().Format(time.RFC3339Nano)
	}
	if data := ce.Data(); data != nil {
		e.Data = data
	}
	if ext := ce.Extensions(); len(ext) > 0 {
		e.Extensions = make(map[string]any, len(ext))
		for k, v := range ext {
			e.Extensions[k] = v
		}
	}
	return e
}
