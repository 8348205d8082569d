package backend

// schema mirrors the hosted project's tables and procedures so the Postgres
// client can run against a plain database.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS auth_users (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email         VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS invite_links (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		creator_id UUID        NOT NULL,
		code       VARCHAR(16) NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS invite_links_code_idx ON invite_links (code)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id             UUID PRIMARY KEY,
		full_name      TEXT        NOT NULL DEFAULT '',
		avatar_url     TEXT,
		invite_link_id UUID REFERENCES invite_links (id),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_points (
		user_id            UUID PRIMARY KEY,
		points             BIGINT      NOT NULL DEFAULT 0,
		last_points_update TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id        UUID           NOT NULL,
		amount         NUMERIC(12, 2) NOT NULL,
		payment_method TEXT           NOT NULL,
		status         VARCHAR(20)    NOT NULL DEFAULT 'pending',
		created_at     TIMESTAMPTZ    NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id    UUID        NOT NULL,
		action     TEXT        NOT NULL,
		details    JSONB       NOT NULL DEFAULT '{}'::jsonb,
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_events (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id    UUID        NOT NULL,
		event_type TEXT        NOT NULL,
		event_data JSONB       NOT NULL DEFAULT '{}'::jsonb,
		page_url   TEXT,
		user_agent TEXT,
		ip_address TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_hits (
		user_id    UUID        NOT NULL,
		action     TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS rate_limit_hits_lookup_idx ON rate_limit_hits (user_id, action, created_at)`,
	`CREATE OR REPLACE FUNCTION check_rate_limit(
		p_user_id UUID, p_action TEXT, p_max_requests INT, p_window_seconds INT
	) RETURNS BOOLEAN LANGUAGE plpgsql AS $$
	DECLARE
		hits INT;
	BEGIN
		SELECT count(*) INTO hits FROM rate_limit_hits
		WHERE user_id = p_user_id AND action = p_action
		  AND created_at > NOW() - make_interval(secs => p_window_seconds);
		IF hits >= p_max_requests THEN
			RETURN FALSE;
		END IF;
		INSERT INTO rate_limit_hits (user_id, action) VALUES (p_user_id, p_action);
		RETURN TRUE;
	END;
	$$`,
	`CREATE OR REPLACE FUNCTION record_analytics_event(
		p_user_id UUID, p_event_type TEXT, p_event_data JSONB,
		p_page_url TEXT, p_user_agent TEXT, p_ip_address TEXT
	) RETURNS VOID LANGUAGE sql AS $$
		INSERT INTO analytics_events (user_id, event_type, event_data, page_url, user_agent, ip_address)
		VALUES (p_user_id, p_event_type, coalesce(p_event_data, '{}'::jsonb), p_page_url, p_user_agent, p_ip_address);
	$$`,
	`CREATE OR REPLACE FUNCTION prune_rate_limit_hits(p_older_than_seconds INT)
	RETURNS INT LANGUAGE plpgsql AS $$
	DECLARE
		removed INT;
	BEGIN
		DELETE FROM rate_limit_hits
		WHERE created_at < NOW() - make_interval(secs => p_older_than_seconds);
		GET DIAGNOSTICS removed = ROW_COUNT;
		RETURN removed;
	END;
	$$`,
}
