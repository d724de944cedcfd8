package store

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    title_key    TEXT NOT NULL UNIQUE,
    abstract     TEXT NOT NULL DEFAULT '',
    authors      TEXT NOT NULL DEFAULT '[]',
    keywords     TEXT NOT NULL DEFAULT '[]',
    publish_date DATETIME NOT NULL,
    source       TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_publish_date ON articles(publish_date);

CREATE TABLE IF NOT EXISTS searches (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    query      TEXT NOT NULL,
    ai_summary TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_searches_user ON searches(user_id, created_at);

CREATE TABLE IF NOT EXISTS search_articles (
    search_id  TEXT NOT NULL REFERENCES searches(id),
    article_id TEXT NOT NULL REFERENCES articles(id),
    PRIMARY KEY (search_id, article_id)
);

CREATE TABLE IF NOT EXISTS ads (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    content       TEXT NOT NULL DEFAULT '',
    keywords      TEXT NOT NULL DEFAULT '[]',
    category      TEXT NOT NULL DEFAULT '',
    is_active     BOOLEAN NOT NULL DEFAULT 1,
    budget        REAL NOT NULL DEFAULT 0,
    advertiser_id TEXT NOT NULL,
    priority      INTEGER NOT NULL DEFAULT 0,
    clicks        INTEGER NOT NULL DEFAULT 0,
    created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ads_active ON ads(is_active, budget);
CREATE INDEX IF NOT EXISTS idx_ads_advertiser ON ads(advertiser_id);

CREATE TABLE IF NOT EXISTS ad_impressions (
    id         TEXT PRIMARY KEY,
    ad_id      TEXT NOT NULL REFERENCES ads(id),
    search_id  TEXT NOT NULL,
    clicked    BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    UNIQUE(ad_id, search_id)
);

CREATE INDEX IF NOT EXISTS idx_impressions_ad ON ad_impressions(ad_id);
CREATE INDEX IF NOT EXISTS idx_impressions_created ON ad_impressions(created_at);
`
