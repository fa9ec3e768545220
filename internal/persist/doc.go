// Package persist is the engine's durable memory of what it last
// reported for each live session.
//
// All records live in one JSON document stored under a single key of a
// settings.Store:
//
//	{
//	  "<session id>": {
//	    "attributesTypeName": "DeliveryAttributes",
//	    "id": "<session id>",
//	    "creationDate": "2026-03-01T12:00:00.000Z",
//	    "activityState": "active",
//	    "pushToken": "dead",
//	    "userId": "u-1",
//	    "topic": "orders",
//	    "customJson": "{\"string_x\":\"1\"}"
//	  }
//	}
//
// customJson is a string holding a JSON document rather than a nested
// object, so host-supplied property shapes never leak into the store
// schema.
//
// Store.Update is the single serialization point for every
// read-modify-write of that document.
package persist
