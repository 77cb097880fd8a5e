package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tixly/internal/shared/constants"

	"github.com/redis/go-redis/v9"
)

// AtomicHoldStore executes the hold lifecycle against Redis. Every state
// transition that touches counters runs as a single Lua script so readers
// never observe a hold and its counters out of sync.
type AtomicHoldStore struct {
	redis *redis.Client
}

// NewAtomicHoldStore creates a new atomic hold store
func NewAtomicHoldStore(redisClient *redis.Client) *AtomicHoldStore {
	return &AtomicHoldStore{
		redis: redisClient,
	}
}

// Lua script for atomic hold acquisition - all-or-nothing across categories.
// KEYS = one counter hash per entry, then the hold key, then the expiration ZSET.
// ARGV[1] = JSON payload.
var luaAcquireHold = redis.NewScript(`
local payload = cjson.decode(ARGV[1])
local categoryCount = #payload.entries
local holdKey = KEYS[categoryCount + 1]
local expirationSetKey = KEYS[categoryCount + 2]

if redis.call('EXISTS', holdKey) == 1 then
	return cjson.encode({ success = false, error = 'HOLD_ALREADY_EXISTS' })
end

for i = 1, categoryCount do
	local inventoryKey = KEYS[i]
	local entry = payload.entries[i]
	local requestQty = tonumber(entry.quantity)
	if requestQty <= 0 then
		return cjson.encode({ success = false, error = 'INVALID_QUANTITY', categoryId = entry.categoryId })
	end
	local available = tonumber(redis.call('HGET', inventoryKey, 'available') or '0')
	if available < requestQty then
		return cjson.encode({
			success = false,
			error = 'INSUFFICIENT_STOCK',
			categoryId = entry.categoryId,
			available = available
		})
	end
end

for i = 1, categoryCount do
	local inventoryKey = KEYS[i]
	local entry = payload.entries[i]
	local requestQty = tonumber(entry.quantity)
	redis.call('HINCRBY', inventoryKey, 'available', -requestQty)
	redis.call('HINCRBY', inventoryKey, 'pending', requestQty)
	redis.call('HINCRBY', inventoryKey, 'version', 1)
end

redis.call('HMSET', holdKey,
	'token', payload.holdToken,
	'status', 'held',
	'createdAt', payload.createdAtIso,
	'expiresAt', payload.expiresAtIso,
	'expiresAtEpoch', tostring(payload.expiresAtEpoch),
	'metadata', cjson.encode(payload.metadata or {}),
	'entries', cjson.encode(payload.entries),
	'traceId', payload.traceId or ''
)
redis.call('EXPIRE', holdKey, payload.ttlSeconds)
redis.call('ZADD', expirationSetKey, payload.expiresAtEpoch, payload.holdToken)

local responseEntries = {}
for i = 1, categoryCount do
	local inventoryKey = KEYS[i]
	local entry = payload.entries[i]
	responseEntries[i] = {
		categoryId = entry.categoryId,
		available = tonumber(redis.call('HGET', inventoryKey, 'available') or '0'),
		pending = tonumber(redis.call('HGET', inventoryKey, 'pending') or '0'),
		total = tonumber(redis.call('HGET', inventoryKey, 'total') or '0')
	}
end

return cjson.encode({
	success = true,
	holdToken = payload.holdToken,
	expiresAt = payload.expiresAtIso,
	expiresAtEpoch = payload.expiresAtEpoch,
	entries = responseEntries
})
`)

// Lua script for claiming a hold into checkout. KEYS[1] = hold key.
var luaClaimHold = redis.NewScript(`
local holdKey = KEYS[1]
local payload = cjson.decode(ARGV[1])

if redis.call('EXISTS', holdKey) == 0 then
	return cjson.encode({ success = false, error = 'HOLD_NOT_FOUND' })
end

local status = redis.call('HGET', holdKey, 'status')
local expiresAtEpoch = tonumber(redis.call('HGET', holdKey, 'expiresAtEpoch') or '0')

if status ~= 'held' then
	return cjson.encode({ success = false, error = 'HOLD_NOT_ACTIVE', status = status })
end

if expiresAtEpoch <= payload.nowEpoch then
	return cjson.encode({ success = false, error = 'HOLD_EXPIRED' })
end

redis.call('HSET', holdKey, 'status', payload.nextStatus)
redis.call('HSET', holdKey, 'orderReference', payload.orderReference or '')
if payload.extendTtlSeconds and payload.extendTtlSeconds > 0 then
	redis.call('EXPIRE', holdKey, payload.extendTtlSeconds)
end

return cjson.encode({
	success = true,
	entries = cjson.decode(redis.call('HGET', holdKey, 'entries')),
	expiresAtEpoch = expiresAtEpoch,
	expiresAt = redis.call('HGET', holdKey, 'expiresAt')
})
`)

// Lua script for releasing a hold back to available. The payload carries the
// statuses the release may transition from, so the same script serves expiry
// sweeps, buyer cancellations and checkout compensation.
var luaReleaseHold = redis.NewScript(`
local categoryCount = tonumber(ARGV[2])
local payload = cjson.decode(ARGV[1])
local holdKey = KEYS[categoryCount + 1]
local expirationSetKey = KEYS[categoryCount + 2]

if redis.call('EXISTS', holdKey) == 0 then
	return cjson.encode({ success = false, error = 'HOLD_NOT_FOUND' })
end

local currentStatus = redis.call('HGET', holdKey, 'status')
local allowed = false
for i = 1, #payload.allowedStatuses do
	if currentStatus == payload.allowedStatuses[i] then
		allowed = true
	end
end
if not allowed then
	return cjson.encode({ success = false, error = 'HOLD_NOT_RELEASABLE', status = currentStatus })
end

local holdEntries = cjson.decode(redis.call('HGET', holdKey, 'entries'))
for i = 1, categoryCount do
	local inventoryKey = KEYS[i]
	local entry = holdEntries[i]
	local quantity = tonumber(entry.quantity)
	redis.call('HINCRBY', inventoryKey, 'pending', -quantity)
	redis.call('HINCRBY', inventoryKey, 'available', quantity)
	redis.call('HINCRBY', inventoryKey, 'version', 1)
end

redis.call('HSET', holdKey, 'status', payload.releaseStatus)
redis.call('HSET', holdKey, 'releasedAt', payload.releasedAtIso)
redis.call('HSET', holdKey, 'releaseReason', payload.reason or '')
redis.call('PERSIST', holdKey)
redis.call('EXPIRE', holdKey, payload.retainSeconds)
redis.call('ZREM', expirationSetKey, payload.holdToken)

return cjson.encode({ success = true, holdToken = payload.holdToken })
`)

// Lua script for finalizing a hold: pending moves to sold. A hold that is
// already finalized returns success so finalization replays are harmless.
var luaFinalizeHold = redis.NewScript(`
local categoryCount = tonumber(ARGV[2])
local payload = cjson.decode(ARGV[1])
local holdKey = KEYS[categoryCount + 1]
local expirationSetKey = KEYS[categoryCount + 2]

if redis.call('EXISTS', holdKey) == 0 then
	return cjson.encode({ success = false, error = 'HOLD_NOT_FOUND' })
end

local currentStatus = redis.call('HGET', holdKey, 'status')
if currentStatus == 'finalized' then
	return cjson.encode({ success = true, holdToken = payload.holdToken, alreadyFinalized = true })
end
if currentStatus ~= 'checkout_pending' and currentStatus ~= 'checkout_committed' then
	return cjson.encode({ success = false, error = 'HOLD_NOT_FINALIZABLE', status = currentStatus })
end

local holdEntries = cjson.decode(redis.call('HGET', holdKey, 'entries'))
for i = 1, categoryCount do
	local inventoryKey = KEYS[i]
	local entry = holdEntries[i]
	local quantity = tonumber(entry.quantity)
	redis.call('HINCRBY', inventoryKey, 'pending', -quantity)
	redis.call('HINCRBY', inventoryKey, 'sold', quantity)
	redis.call('HINCRBY', inventoryKey, 'version', 1)
end

redis.call('HSET', holdKey, 'status', 'finalized')
redis.call('HSET', holdKey, 'finalizedAt', payload.finalizedAtIso)
redis.call('HSET', holdKey, 'orderId', payload.orderId)
redis.call('HSET', holdKey, 'paymentReference', payload.paymentReference or '')
redis.call('PERSIST', holdKey)
redis.call('EXPIRE', holdKey, payload.retainSeconds)
redis.call('ZREM', expirationSetKey, payload.holdToken)

return cjson.encode({ success = true, holdToken = payload.holdToken })
`)

// Lua script for extending an active hold deadline.
// KEYS[1] = hold key, KEYS[2] = expiration ZSET.
var luaExtendHold = redis.NewScript(`
local holdKey = KEYS[1]
local expirationSetKey = KEYS[2]
local payload = cjson.decode(ARGV[1])

if redis.call('EXISTS', holdKey) == 0 then
	return cjson.encode({ success = false, error = 'HOLD_NOT_FOUND' })
end

local status = redis.call('HGET', holdKey, 'status')
local expiresAtEpoch = tonumber(redis.call('HGET', holdKey, 'expiresAtEpoch') or '0')

if status ~= 'held' then
	return cjson.encode({ success = false, error = 'HOLD_NOT_EXTENDABLE', status = status })
end

if expiresAtEpoch <= payload.nowEpoch then
	return cjson.encode({ success = false, error = 'HOLD_EXPIRED' })
end

redis.call('HSET', holdKey, 'expiresAt', payload.newExpiresAtIso)
redis.call('HSET', holdKey, 'expiresAtEpoch', tostring(payload.newExpiresAtEpoch))
redis.call('EXPIRE', holdKey, payload.ttlSeconds)
redis.call('ZADD', expirationSetKey, payload.newExpiresAtEpoch, payload.holdToken)

return cjson.encode({
	success = true,
	expiresAt = payload.newExpiresAtIso,
	expiresAtEpoch = payload.newExpiresAtEpoch
})
`)

func buildEntryInventoryKeys(entries []HoldEntry) []string {
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = constants.BuildInventoryKey(entry.EventID, entry.CategoryID)
	}
	return keys
}

type acquirePayload struct {
	HoldToken      string            `json:"holdToken"`
	TTLSeconds     int               `json:"ttlSeconds"`
	CreatedAtIso   string            `json:"createdAtIso"`
	ExpiresAtIso   string            `json:"expiresAtIso"`
	ExpiresAtEpoch int64             `json:"expiresAtEpoch"`
	Metadata       map[string]string `json:"metadata"`
	Entries        []HoldEntry       `json:"entries"`
	TraceID        string            `json:"traceId,omitempty"`
}

// AcquireHold atomically checks and decrements availability across every
// requested category, creating the hold record on success.
func (a *AtomicHoldStore) AcquireHold(ctx context.Context, token string, entries []HoldEntry, ttl time.Duration, metadata map[string]string, traceID string) (*AcquireResult, error) {
	if a.redis == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	payload := acquirePayload{
		HoldToken:      token,
		TTLSeconds:     int(ttl.Seconds()),
		CreatedAtIso:   now.Format(time.RFC3339),
		ExpiresAtIso:   expiresAt.Format(time.RFC3339),
		ExpiresAtEpoch: expiresAt.Unix(),
		Metadata:       metadata,
		Entries:        entries,
		TraceID:        traceID,
	}

	keys := append(buildEntryInventoryKeys(entries),
		constants.BuildHoldKey(token),
		constants.KEY_HOLD_EXPIRATION_INDEX,
	)

	var result AcquireResult
	if err := a.runScript(ctx, luaAcquireHold, keys, &result, payload); err != nil {
		return nil, fmt.Errorf("failed to execute atomic hold acquire: %w", err)
	}
	return &result, nil
}

type claimPayload struct {
	HoldToken        string `json:"holdToken"`
	OrderReference   string `json:"orderReference,omitempty"`
	NextStatus       string `json:"nextStatus"`
	NowEpoch         int64  `json:"nowEpoch"`
	ExtendTTLSeconds int    `json:"extendTtlSeconds,omitempty"`
}

// ClaimHold transitions a live hold to checkout_pending, stamping the order
// reference and optionally stretching the record TTL to cover the checkout.
func (a *AtomicHoldStore) ClaimHold(ctx context.Context, token, orderReference string, extendTTL time.Duration) (*ClaimResult, error) {
	if a.redis == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	payload := claimPayload{
		HoldToken:        token,
		OrderReference:   orderReference,
		NextStatus:       string(HoldStatusCheckoutPending),
		NowEpoch:         time.Now().Unix(),
		ExtendTTLSeconds: int(extendTTL.Seconds()),
	}

	keys := []string{constants.BuildHoldKey(token)}

	var result ClaimResult
	if err := a.runScript(ctx, luaClaimHold, keys, &result, payload); err != nil {
		return nil, fmt.Errorf("failed to execute atomic hold claim: %w", err)
	}
	return &result, nil
}

// MarkCommitted flags the hold as checkout_committed once the order row is
// durable. Plain HSET is enough here, no counters move.
func (a *AtomicHoldStore) MarkCommitted(ctx context.Context, token, orderReference string) error {
	if a.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return a.redis.HSet(ctx, constants.BuildHoldKey(token),
		"status", string(HoldStatusCheckoutCommitted),
		"orderReference", orderReference,
	).Err()
}

type releasePayload struct {
	HoldToken       string   `json:"holdToken"`
	Reason          string   `json:"reason,omitempty"`
	ReleaseStatus   string   `json:"releaseStatus"`
	ReleasedAtIso   string   `json:"releasedAtIso"`
	RetainSeconds   int      `json:"retainSeconds"`
	AllowedStatuses []string `json:"allowedStatuses"`
}

// ReleaseHold returns a hold's pending quantities to available, provided the
// hold is in one of the allowed statuses. Returns false when the hold is
// missing or not releasable.
func (a *AtomicHoldStore) ReleaseHold(ctx context.Context, token, reason string, newStatus HoldStatus, allowedFrom []HoldStatus, retain time.Duration) (bool, error) {
	if a.redis == nil {
		return false, fmt.Errorf("redis client not available")
	}

	hold, err := a.GetHold(ctx, token)
	if err != nil {
		return false, err
	}
	if hold == nil {
		return false, nil
	}

	allowed := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		allowed[i] = string(s)
	}

	payload := releasePayload{
		HoldToken:       token,
		Reason:          reason,
		ReleaseStatus:   string(newStatus),
		ReleasedAtIso:   time.Now().UTC().Format(time.RFC3339),
		RetainSeconds:   int(retain.Seconds()),
		AllowedStatuses: allowed,
	}

	keys := append(buildEntryInventoryKeys(hold.Entries),
		constants.BuildHoldKey(token),
		constants.KEY_HOLD_EXPIRATION_INDEX,
	)

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	if err := a.runScript(ctx, luaReleaseHold, keys, &result, payload, len(hold.Entries)); err != nil {
		return false, fmt.Errorf("failed to execute atomic hold release: %w", err)
	}
	return result.Success, nil
}

type finalizePayload struct {
	HoldToken        string `json:"holdToken"`
	OrderID          string `json:"orderId"`
	PaymentReference string `json:"paymentReference,omitempty"`
	FinalizedAtIso   string `json:"finalizedAtIso"`
	RetainSeconds    int    `json:"retainSeconds"`
}

// FinalizeHold converts a claimed hold's pending quantities into sold.
// Finalizing an already finalized hold reports success without moving
// counters, so message replays stay safe.
func (a *AtomicHoldStore) FinalizeHold(ctx context.Context, token, orderID, paymentReference string, retain time.Duration) (bool, error) {
	if a.redis == nil {
		return false, fmt.Errorf("redis client not available")
	}

	hold, err := a.GetHold(ctx, token)
	if err != nil {
		return false, err
	}
	if hold == nil {
		return false, nil
	}

	payload := finalizePayload{
		HoldToken:        token,
		OrderID:          orderID,
		PaymentReference: paymentReference,
		FinalizedAtIso:   time.Now().UTC().Format(time.RFC3339),
		RetainSeconds:    int(retain.Seconds()),
	}

	keys := append(buildEntryInventoryKeys(hold.Entries),
		constants.BuildHoldKey(token),
		constants.KEY_HOLD_EXPIRATION_INDEX,
	)

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	if err := a.runScript(ctx, luaFinalizeHold, keys, &result, payload, len(hold.Entries)); err != nil {
		return false, fmt.Errorf("failed to execute atomic hold finalize: %w", err)
	}
	return result.Success, nil
}

type extendPayload struct {
	HoldToken         string `json:"holdToken"`
	NowEpoch          int64  `json:"nowEpoch"`
	TTLSeconds        int    `json:"ttlSeconds"`
	NewExpiresAtIso   string `json:"newExpiresAtIso"`
	NewExpiresAtEpoch int64  `json:"newExpiresAtEpoch"`
}

// ExtendHold pushes the expiry of a live hold out by the given duration
func (a *AtomicHoldStore) ExtendHold(ctx context.Context, token string, extendBy time.Duration) (*ExtendResult, error) {
	if a.redis == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	now := time.Now().UTC()
	newExpiresAt := now.Add(extendBy)

	payload := extendPayload{
		HoldToken:         token,
		NowEpoch:          now.Unix(),
		TTLSeconds:        int(extendBy.Seconds()),
		NewExpiresAtIso:   newExpiresAt.Format(time.RFC3339),
		NewExpiresAtEpoch: newExpiresAt.Unix(),
	}

	keys := []string{constants.BuildHoldKey(token), constants.KEY_HOLD_EXPIRATION_INDEX}

	var result ExtendResult
	if err := a.runScript(ctx, luaExtendHold, keys, &result, payload); err != nil {
		return nil, fmt.Errorf("failed to execute atomic hold extend: %w", err)
	}
	return &result, nil
}

// GetHold reads a hold record. Returns nil without error when absent.
func (a *AtomicHoldStore) GetHold(ctx context.Context, token string) (*Hold, error) {
	if a.redis == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	fields, err := a.redis.HMGet(ctx, constants.BuildHoldKey(token),
		"entries", "status", "expiresAt", "expiresAtEpoch", "orderReference").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read hold: %w", err)
	}
	if len(fields) == 0 || fields[0] == nil {
		return nil, nil
	}

	hold := &Hold{Token: token}

	if raw, ok := fields[0].(string); ok {
		if err := json.Unmarshal([]byte(raw), &hold.Entries); err != nil {
			return nil, fmt.Errorf("corrupt hold entries for %s: %w", token, err)
		}
	}
	if raw, ok := fields[1].(string); ok {
		hold.Status = HoldStatus(raw)
	}
	if raw, ok := fields[2].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			hold.ExpiresAt = t
		}
	}
	if raw, ok := fields[3].(string); ok {
		hold.ExpiresAtEpoch, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw, ok := fields[4].(string); ok {
		hold.OrderReference = raw
	}

	return hold, nil
}

// ListExpired returns up to limit hold tokens whose deadline is at or before now
func (a *AtomicHoldStore) ListExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	if a.redis == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	tokens, err := a.redis.ZRangeByScore(ctx, constants.KEY_HOLD_EXPIRATION_INDEX, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}
	return tokens, nil
}

// RemoveFromExpirationIndex drops a token from the expiration ZSET. The
// sweeper uses this for tokens whose records are already terminal or gone.
func (a *AtomicHoldStore) RemoveFromExpirationIndex(ctx context.Context, token string) error {
	if a.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return a.redis.ZRem(ctx, constants.KEY_HOLD_EXPIRATION_INDEX, token).Err()
}

// InitCounter seeds the counter hash for an event/category pair. Pending is
// reset to zero, so only run this while no holds are live for the pair.
func (a *AtomicHoldStore) InitCounter(ctx context.Context, eventID, categoryID string, total, sold int) error {
	if a.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	available := total - sold
	if available < 0 {
		available = 0
	}

	return a.redis.HSet(ctx, constants.BuildInventoryKey(eventID, categoryID),
		"total", total,
		"available", available,
		"pending", 0,
		"sold", sold,
		"version", 1,
	).Err()
}

// GetCounterSnapshot reads the live counters for an event/category pair.
// Returns nil without error when the pair was never seeded.
func (a *AtomicHoldStore) GetCounterSnapshot(ctx context.Context, eventID, categoryID string) (*CounterSnapshot, error) {
	if a.redis == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	fields, err := a.redis.HGetAll(ctx, constants.BuildInventoryKey(eventID, categoryID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	atoi := func(s string) int {
		v, _ := strconv.Atoi(s)
		return v
	}

	version, _ := strconv.ParseInt(fields["version"], 10, 64)
	return &CounterSnapshot{
		Total:     atoi(fields["total"]),
		Available: atoi(fields["available"]),
		Pending:   atoi(fields["pending"]),
		Sold:      atoi(fields["sold"]),
		Version:   version,
	}, nil
}

// runScript executes a script and decodes its JSON reply
func (a *AtomicHoldStore) runScript(ctx context.Context, script *redis.Script, keys []string, out interface{}, payload interface{}, extraArgs ...interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode script payload: %w", err)
	}

	args := append([]interface{}{string(encoded)}, extraArgs...)
	raw, err := script.Run(ctx, a.redis, keys, args...).Result()
	if err != nil {
		return err
	}

	reply, ok := raw.(string)
	if !ok {
		return fmt.Errorf("unexpected script reply type %T", raw)
	}
	if err := json.Unmarshal([]byte(reply), out); err != nil {
		return fmt.Errorf("failed to decode script reply: %w", err)
	}
	return nil
}

// PreloadScripts loads the hold scripts into Redis at startup
func (a *AtomicHoldStore) PreloadScripts(ctx context.Context) error {
	if a.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	for _, script := range []*redis.Script{luaAcquireHold, luaClaimHold, luaReleaseHold, luaFinalizeHold, luaExtendHold} {
		if err := script.Load(ctx, a.redis).Err(); err != nil {
			return fmt.Errorf("failed to load hold script: %w", err)
		}
	}
	return nil
}
