package api

const createSessionSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["bank_account_id", "fiscal_period_id"],
  "properties": {
    "bank_account_id": {"type": "string", "minLength": 1},
    "fiscal_period_id": {"type": "string", "minLength": 1},
    "source_name": {"type": "string", "maxLength": 255},
    "notes": {"type": "string", "maxLength": 2000}
  }
}`

const importTransactionsSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["transactions"],
  "properties": {
    "transactions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["date", "description"],
        "properties": {
          "date": {"type": "string", "minLength": 1},
          "description": {"type": "string", "minLength": 1, "maxLength": 1000},
          "reference": {"type": "string", "maxLength": 255},
          "category": {"type": "string", "maxLength": 255},
          "debit": {"type": "number", "minimum": 0},
          "credit": {"type": "number", "minimum": 0},
          "balance": {"type": "number"}
        }
      }
    }
  }
}`

const bulkMapSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["transaction_ids", "account_id"],
  "properties": {
    "transaction_ids": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "account_id": {"type": "string", "minLength": 1},
    "save_rule": {"type": "boolean"},
    "rule_name": {"type": "string", "maxLength": 255},
    "rule_pattern": {"type": "string", "maxLength": 500}
  }
}`

const stageSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "allow_unmapped": {"type": "boolean"}
  }
}`

const promoteSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["posted_by"],
  "properties": {
    "posted_by": {"type": "string", "minLength": 1, "maxLength": 255}
  }
}`

const mappingRuleSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["name", "pattern_type", "pattern", "match_field", "account_id"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1, "maxLength": 255},
    "pattern_type": {"type": "string", "enum": ["contains", "starts_with", "ends_with", "exact", "regex"]},
    "pattern": {"type": "string", "minLength": 1, "maxLength": 500},
    "match_field": {"type": "string", "enum": ["description", "reference", "category", "amount"]},
    "transaction_type": {"type": "string", "enum": ["debit", "credit", "both"]},
    "priority": {"type": "integer", "minimum": 0, "maximum": 1000},
    "account_id": {"type": "string", "minLength": 1},
    "is_active": {"type": "boolean"}
  }
}`

const createReconciliationSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["bank_account_id", "period_start", "period_end", "closing_balance"],
  "properties": {
    "bank_account_id": {"type": "string", "minLength": 1},
    "period_start": {"type": "string", "format": "date-time"},
    "period_end": {"type": "string", "format": "date-time"},
    "opening_balance": {"type": "integer"},
    "closing_balance": {"type": "integer"},
    "notes": {"type": "string", "maxLength": 2000}
  }
}`

const bankFeedSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["transactions"],
  "properties": {
    "transactions": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["id", "date", "amount"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "date": {"type": "string", "format": "date-time"},
          "description": {"type": "string", "maxLength": 1000},
          "reference": {"type": "string", "maxLength": 255},
          "amount": {"type": "integer"}
        }
      }
    }
  }
}`

const confirmMatchSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["confirmed_by"],
  "properties": {
    "confirmed_by": {"type": "string", "minLength": 1, "maxLength": 255}
  }
}`

const createAdjustmentSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["type", "description", "amount", "account_id", "fiscal_period_id"],
  "properties": {
    "type": {"type": "string", "enum": ["fee", "interest", "timing", "other"]},
    "description": {"type": "string", "minLength": 1, "maxLength": 1000},
    "amount": {"type": "integer"},
    "account_id": {"type": "string", "minLength": 1},
    "fiscal_period_id": {"type": "string", "minLength": 1},
    "created_by": {"type": "string", "maxLength": 255}
  }
}`

const reverseAdjustmentSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["reason", "reversed_by"],
  "properties": {
    "reason": {"type": "string", "minLength": 1, "maxLength": 1000},
    "reversed_by": {"type": "string", "minLength": 1, "maxLength": 255}
  }
}`
