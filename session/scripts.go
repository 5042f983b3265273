package session

import "github.com/redis/go-redis/v9"

const (
	statusNotFound int64 = 0
	statusExpired  int64 = 1
	statusMismatch int64 = 2
	statusIdle     int64 = 3
	statusReused   int64 = 4
	statusOK       int64 = 5
)

// Session keys are addressed as ARGV[1] .. sid and user index sets as
// ARGV[2] .. uid, so the scripts assume a single Redis node or a hash-tagged prefix.
const revokeAllFn = `
local function revoke_all(session_prefix, user_prefix, uid)
  local user_key = user_prefix .. uid
  local ids = redis.call("SMEMBERS", user_key)
  for _, id in ipairs(ids) do
    redis.call("DEL", session_prefix .. id)
  end
  redis.call("DEL", user_key)
  return #ids
end
`

const rotateScript = revokeAllFn + `
local old_key = KEYS[1]
local new_key = KEYS[2]
local session_prefix = ARGV[1]
local user_prefix = ARGV[2]
local old_sid = ARGV[3]
local new_sid = ARGV[4]
local provided = ARGV[5]
local next_hash = ARGV[6]
local now = tonumber(ARGV[7])
local idle = tonumber(ARGV[8])
local ttl = tonumber(ARGV[9])
local max_life = tonumber(ARGV[10])

local f = redis.call("HMGET", old_key, "uid", "rh", "state", "exp", "seen", "fam")
local uid = f[1]
if not uid then
  return {0}
end
local exp = tonumber(f[4])
local seen = tonumber(f[5])
local fam = tonumber(f[6])
if not exp or not seen or not fam then
  return {0}
end

if f[3] == "rotated" then
  if f[2] ~= provided then
    return {0}
  end
  local n = revoke_all(session_prefix, user_prefix, uid)
  return {4, uid, n}
end

if f[2] ~= provided then
  return {2, uid}
end

if exp <= now then
  redis.call("DEL", old_key)
  redis.call("SREM", user_prefix .. uid, old_sid)
  return {1, uid}
end

if idle > 0 and seen + idle <= now then
  redis.call("DEL", old_key)
  redis.call("SREM", user_prefix .. uid, old_sid)
  return {3, uid}
end

local new_exp = now + ttl
if max_life > 0 and fam + max_life < new_exp then
  new_exp = fam + max_life
end
if new_exp <= now then
  redis.call("DEL", old_key)
  redis.call("SREM", user_prefix .. uid, old_sid)
  return {1, uid}
end

local all = redis.call("HGETALL", old_key)
redis.call("DEL", new_key)
redis.call("HSET", new_key, unpack(all))
redis.call("HSET", new_key, "rh", next_hash, "created", now, "exp", new_exp, "seen", now, "state", "active", "next", "")
redis.call("EXPIREAT", new_key, new_exp)

redis.call("HSET", old_key, "state", "rotated", "next", new_sid)
redis.call("SREM", user_prefix .. uid, old_sid)
redis.call("SADD", user_prefix .. uid, new_sid)

return {5, uid, redis.call("HGETALL", new_key)}
`

const touchScript = `
local key = KEYS[1]
local user_key_prefix = ARGV[1]
local sid = ARGV[2]
local now = tonumber(ARGV[3])
local idle = tonumber(ARGV[4])

local f = redis.call("HMGET", key, "uid", "state", "exp", "seen")
local uid = f[1]
if not uid or f[2] ~= "active" then
  return {0}
end
local exp = tonumber(f[3])
local seen = tonumber(f[4])
if not exp or not seen then
  return {0}
end
if exp <= now then
  redis.call("DEL", key)
  redis.call("SREM", user_key_prefix .. uid, sid)
  return {1}
end
if idle > 0 and seen + idle <= now then
  redis.call("DEL", key)
  redis.call("SREM", user_key_prefix .. uid, sid)
  return {3}
end
redis.call("HSET", key, "seen", now)
return {5, redis.call("HGETALL", key)}
`

const invalidateScript = `
local key = KEYS[1]
local uid = redis.call("HGET", key, "uid")
if not uid then
  return 0
end
redis.call("DEL", key)
redis.call("SREM", ARGV[1] .. uid, ARGV[2])
return 1
`

const invalidateAllScript = revokeAllFn + `
return revoke_all(ARGV[1], ARGV[2], ARGV[3])
`

var (
	rotateLua        = redis.NewScript(rotateScript)
	touchLua         = redis.NewScript(touchScript)
	invalidateLua    = redis.NewScript(invalidateScript)
	invalidateAllLua = redis.NewScript(invalidateAllScript)
)
