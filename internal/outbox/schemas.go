package outbox

const activityStartedSchema = `{
  "type": "object",
  "title": "ActivityStarted",
  "properties": {
    "activity_id": {"type": "string"},
    "worker_id": {"type": "string"},
    "task_id": {"type": "string"},
    "kind": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "worker_id", "kind", "started_at"],
  "additionalProperties": false
}`

const activityStateChangedSchema = `{
  "type": "object",
  "title": "ActivityStateChanged",
  "properties": {
    "activity_id": {"type": "string"},
    "worker_id": {"type": "string"},
    "status": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "worker_id", "status", "occurred_at"],
  "additionalProperties": false
}`

const attendanceCheckedInSchema = `{
  "type": "object",
  "title": "AttendanceCheckedIn",
  "properties": {
    "attendance_id": {"type": "string"},
    "worker_id": {"type": "string"},
    "location": {"type": "string"},
    "checked_in_at": {"type": "string", "format": "date-time"}
  },
  "required": ["attendance_id", "worker_id", "location", "checked_in_at"],
  "additionalProperties": false
}`

const attendanceCheckedOutSchema = `{
  "type": "object",
  "title": "AttendanceCheckedOut",
  "properties": {
    "attendance_id": {"type": "string"},
    "worker_id": {"type": "string"},
    "checked_out_at": {"type": "string", "format": "date-time"},
    "window_minutes": {"type": "integer"}
  },
  "required": ["attendance_id", "worker_id", "checked_out_at", "window_minutes"],
  "additionalProperties": false
}`
